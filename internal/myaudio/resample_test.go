package myaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleAudioSameRatePassthrough(t *testing.T) {
	input := []float32{0.1, 0.2, 0.3}
	out, err := ResampleAudio(input, 48000, 48000)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestResampleAudioLengthScaling(t *testing.T) {
	input := make([]float32, 48000)

	down, err := ResampleAudio(input, 48000, 24000)
	require.NoError(t, err)
	assert.Len(t, down, 24000)

	up, err := ResampleAudio(input, 24000, 48000)
	require.NoError(t, err)
	assert.Len(t, up, 96000)

	odd, err := ResampleAudio(input, 44100, 48000)
	require.NoError(t, err)
	assert.Len(t, odd, int(float64(len(input))*48000.0/44100.0))
}

func TestResampleAudioConstantSignal(t *testing.T) {
	input := make([]float32, 1000)
	for i := range input {
		input[i] = 0.5
	}

	out, err := ResampleAudio(input, 44100, 48000)
	require.NoError(t, err)
	for i, v := range out {
		assert.InDelta(t, 0.5, v, 1e-5, "sample %d", i)
	}
}

func TestResampleAudioLinearRamp(t *testing.T) {
	// Cubic interpolation reproduces a linear ramp away from the edges.
	input := make([]float32, 1000)
	for i := range input {
		input[i] = float32(i) / 1000.0
	}

	out, err := ResampleAudio(input, 48000, 24000)
	require.NoError(t, err)
	require.Len(t, out, 500)

	for i := 10; i < len(out)-10; i++ {
		expected := float32(i*2) / 1000.0
		assert.InDelta(t, expected, out[i], 0.01, "sample %d", i)
	}
}

func TestResampleAudioInvalidInput(t *testing.T) {
	_, err := ResampleAudio([]float32{0.1, 0.2}, 48000, 24000)
	assert.Error(t, err, "too few samples for cubic taps")

	_, err = ResampleAudio(make([]float32, 100), 0, 48000)
	assert.Error(t, err)

	_, err = ResampleAudio(make([]float32, 100), 48000, -1)
	assert.Error(t, err)
}
