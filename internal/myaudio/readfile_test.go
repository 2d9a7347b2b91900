package myaudio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

func readerTestSettings(overlap float64) *conf.Settings {
	return &conf.Settings{
		BirdNET: conf.BirdNETConfig{Overlap: overlap},
	}
}

func TestChunkGeometry(t *testing.T) {
	tests := []struct {
		name     string
		overlap  float64
		wantStep int
	}{
		{name: "no_overlap", overlap: 0.0, wantStep: 144000},
		{name: "half_overlap", overlap: 1.5, wantStep: 72000},
		{name: "two_second_overlap", overlap: 2.0, wantStep: 48000},
		// Step comes out of float64 arithmetic, so 0.01s truncates to
		// 479 samples rather than 480.
		{name: "max_overlap", overlap: 2.99, wantStep: int((3 - 2.99) * 48000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, minLen, seconds := chunkGeometry(readerTestSettings(tt.overlap))
			assert.Equal(t, tt.wantStep, step)
			assert.Equal(t, 72000, minLen)
			assert.Equal(t, 144000, seconds)
		})
	}
}

func TestEmitChunksNoOverlap(t *testing.T) {
	var emitted [][]float32
	callback := func(chunk []float32) error {
		copied := make([]float32, len(chunk))
		copy(copied, chunk)
		emitted = append(emitted, copied)
		return nil
	}

	// Two full windows plus a remainder.
	input := make([]float32, 144000*2+500)
	rest, err := emitChunks(input, 144000, 144000, callback)
	require.NoError(t, err)
	assert.Len(t, emitted, 2)
	assert.Len(t, rest, 500)
}

func TestEmitChunksWithOverlap(t *testing.T) {
	count := 0
	callback := func(chunk []float32) error {
		count++
		assert.Len(t, chunk, 144000)
		return nil
	}

	// step of half a window doubles the emission density.
	input := make([]float32, 144000*2)
	rest, err := emitChunks(input, 72000, 144000, callback)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, rest, 72000)
}

func TestEmitFinalChunk(t *testing.T) {
	t.Run("too_short_skipped", func(t *testing.T) {
		called := false
		err := emitFinalChunk(make([]float32, 71999), 72000, 144000, func([]float32) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("padded_to_full_window", func(t *testing.T) {
		input := make([]float32, 100000)
		for i := range input {
			input[i] = 0.25
		}
		var got []float32
		err := emitFinalChunk(input, 72000, 144000, func(chunk []float32) error {
			got = chunk
			return nil
		})
		require.NoError(t, err)
		require.Len(t, got, 144000)
		assert.InDelta(t, 0.25, got[99999], 1e-6)
		assert.Zero(t, got[100000], "padding is silence")
		assert.Zero(t, got[143999])
	})

	t.Run("exact_window_unpadded", func(t *testing.T) {
		var got []float32
		err := emitFinalChunk(make([]float32, 144000), 72000, 144000, func(chunk []float32) error {
			got = chunk
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, got, 144000)
	})
}

func TestGetAudioInfoUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0o644))

	_, err := GetAudioInfo(path)
	assert.Error(t, err)
}

func TestGetAudioInfoMissingFile(t *testing.T) {
	_, err := GetAudioInfo(filepath.Join(t.TempDir(), "absent.wav"))
	assert.Error(t, err)
}

func TestWAVSaveAndReadInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clips", "test.wav")

	// One second of 48 kHz mono silence.
	pcm := make([]byte, 48000*2)
	require.NoError(t, SavePCMDataToWAV(path, pcm, 48000, 1))

	info, err := GetAudioInfo(path)
	require.NoError(t, err)
	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 1, info.NumChannels)
	assert.Equal(t, 16, info.BitDepth)
}

func TestReadAudioFileBufferedShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.wav")

	// Two seconds at 48 kHz: below one full window but above the
	// half-window minimum, so exactly one zero-padded chunk comes out.
	pcm := pcm16(repeatSample(0x1000, 96000)...)
	require.NoError(t, SavePCMDataToWAV(path, pcm, 48000, 1))

	var chunks [][]float32
	err := ReadAudioFileBuffered(path, readerTestSettings(0.0), func(chunk []float32) error {
		copied := make([]float32, len(chunk))
		copy(copied, chunk)
		chunks = append(chunks, copied)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 144000)

	assert.InDelta(t, float32(0x1000)/32768.0, chunks[0][0], 1e-4)
	assert.InDelta(t, float32(0x1000)/32768.0, chunks[0][95999], 1e-4)
	assert.Zero(t, chunks[0][96000], "tail is zero padded")
}

func TestReadAudioFileBufferedResamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lowrate.wav")

	// Two seconds at 24 kHz resample up to one 96000 sample chunk.
	pcm := pcm16(repeatSample(0x2000, 48000)...)
	require.NoError(t, SavePCMDataToWAV(path, pcm, 24000, 1))

	var chunks [][]float32
	err := ReadAudioFileBuffered(path, readerTestSettings(0.0), func(chunk []float32) error {
		copied := make([]float32, len(chunk))
		copy(copied, chunk)
		chunks = append(chunks, copied)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 144000)
	assert.InDelta(t, float32(0x2000)/32768.0, chunks[0][1000], 1e-3, "constant signal survives resampling")
}

func repeatSample(value int16, count int) []int16 {
	out := make([]int16, count)
	for i := range out {
		out[i] = value
	}
	return out
}
