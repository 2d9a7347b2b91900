package myaudio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcm16 encodes int16 samples as little-endian PCM bytes.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestNewAnalysisBufferValidation(t *testing.T) {
	tests := []struct {
		name          string
		sampleRate    int
		channels      int
		windowSeconds int
		wantErr       bool
	}{
		{name: "valid_mono", sampleRate: 48000, channels: 1, windowSeconds: 3, wantErr: false},
		{name: "valid_stereo", sampleRate: 44100, channels: 2, windowSeconds: 3, wantErr: false},
		{name: "zero_sample_rate", sampleRate: 0, channels: 1, windowSeconds: 3, wantErr: true},
		{name: "negative_sample_rate", sampleRate: -48000, channels: 1, windowSeconds: 3, wantErr: true},
		{name: "zero_channels", channels: 0, sampleRate: 48000, windowSeconds: 3, wantErr: true},
		{name: "too_many_channels", channels: 3, sampleRate: 48000, windowSeconds: 3, wantErr: true},
		{name: "zero_window", sampleRate: 48000, channels: 1, windowSeconds: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := NewAnalysisBuffer(tt.sampleRate, tt.channels, tt.windowSeconds)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, buf)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.sampleRate*tt.windowSeconds, buf.WindowSamples())
			}
		})
	}
}

func TestAnalysisBufferWindowGeometry(t *testing.T) {
	buf, err := NewAnalysisBuffer(48000, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 144000, buf.WindowSamples())
	assert.Equal(t, 288000, buf.WindowBytes(), "3 s of 48 kHz mono 16-bit PCM")

	stereo, err := NewAnalysisBuffer(48000, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 144000, stereo.WindowSamples(), "window samples are per mono output")
	assert.Equal(t, 576000, stereo.WindowBytes())
}

// An append that lands exactly on the window boundary must make exactly
// one window available, and draining it must empty the buffer again.
func TestAnalysisBufferExactFillYieldsOneWindow(t *testing.T) {
	buf, err := NewAnalysisBuffer(100, 1, 1)
	require.NoError(t, err)

	require.False(t, buf.Ready())

	data := make([]byte, buf.WindowBytes())
	require.NoError(t, buf.Append(data))
	assert.True(t, buf.Ready())

	samples, raw, err := buf.TakeWindow()
	require.NoError(t, err)
	assert.Len(t, samples, buf.WindowSamples())
	assert.Len(t, raw, buf.WindowBytes())

	assert.False(t, buf.Ready(), "exact fill yields exactly one window")

	samples, raw, err = buf.TakeWindow()
	require.NoError(t, err)
	assert.Nil(t, samples)
	assert.Nil(t, raw)
}

func TestAnalysisBufferPartialFillNotReady(t *testing.T) {
	buf, err := NewAnalysisBuffer(100, 1, 1)
	require.NoError(t, err)

	data := make([]byte, buf.WindowBytes()-2)
	require.NoError(t, buf.Append(data))
	assert.False(t, buf.Ready())

	samples, raw, err := buf.TakeWindow()
	require.NoError(t, err)
	assert.Nil(t, samples)
	assert.Nil(t, raw)

	// One more sample completes the window.
	require.NoError(t, buf.Append(pcm16(0)))
	assert.True(t, buf.Ready())
}

func TestAnalysisBufferConvertsSampleValues(t *testing.T) {
	buf, err := NewAnalysisBuffer(2, 1, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Append(pcm16(-32768, 32767)))

	samples, raw, err := buf.TakeWindow()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, -1.0, samples[0], 0.0001)
	assert.InDelta(t, 0.999969, samples[1], 0.0001)
	assert.Equal(t, pcm16(-32768, 32767), raw, "raw window bytes preserved for export")
}

func TestAnalysisBufferStereoDownmix(t *testing.T) {
	buf, err := NewAnalysisBuffer(2, 2, 1)
	require.NoError(t, err)

	// Two frames of interleaved L/R pairs.
	require.NoError(t, buf.Append(pcm16(16384, -16384, 8192, 8192)))

	samples, _, err := buf.TakeWindow()
	require.NoError(t, err)
	require.Len(t, samples, 2, "stereo downmixes to one sample per frame")
	assert.InDelta(t, 0.0, samples[0], 0.0001)
	assert.InDelta(t, 0.25, samples[1], 0.0001)
}

func TestAnalysisBufferSequentialWindows(t *testing.T) {
	buf, err := NewAnalysisBuffer(4, 1, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Append(pcm16(1, 2, 3, 4)))
	require.NoError(t, buf.Append(pcm16(5, 6, 7, 8)))

	first, _, err := buf.TakeWindow()
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.InDelta(t, float32(1)/32768.0, first[0], 1e-6)

	second, _, err := buf.TakeWindow()
	require.NoError(t, err)
	require.Len(t, second, 4)
	assert.InDelta(t, float32(5)/32768.0, second[0], 1e-6, "windows drain in arrival order without overlap")
}

func TestAnalysisBufferDropsWhenFull(t *testing.T) {
	buf, err := NewAnalysisBuffer(10, 1, 1)
	require.NoError(t, err)

	// Capacity is three windows. Fill it completely, then append one
	// more window without draining.
	full := make([]byte, buf.WindowBytes()*3)
	require.NoError(t, buf.Append(full))
	assert.Zero(t, buf.DroppedBytes())

	extra := make([]byte, buf.WindowBytes())
	err = buf.Append(extra)
	assert.Error(t, err)
	assert.Equal(t, uint64(buf.WindowBytes()), buf.DroppedBytes())

	// Draining recovers the buffered windows intact.
	for i := 0; i < 3; i++ {
		samples, _, err := buf.TakeWindow()
		require.NoError(t, err)
		assert.Len(t, samples, buf.WindowSamples())
	}
	assert.False(t, buf.Ready())
}

func TestAnalysisBufferReset(t *testing.T) {
	buf, err := NewAnalysisBuffer(10, 1, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Append(make([]byte, buf.WindowBytes())))
	require.True(t, buf.Ready())

	buf.Reset()
	assert.False(t, buf.Ready())
}

func TestAnalysisBufferEmptyAppend(t *testing.T) {
	buf, err := NewAnalysisBuffer(10, 1, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Append(nil))
	require.NoError(t, buf.Append([]byte{}))
	assert.False(t, buf.Ready())
	assert.Zero(t, buf.DroppedBytes())
}
