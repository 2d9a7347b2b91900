package myaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToFloat32Correctness16Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []float32
	}{
		{
			name:     "empty",
			input:    []byte{},
			expected: []float32{},
		},
		{
			name:     "single_zero",
			input:    []byte{0x00, 0x00},
			expected: []float32{0.0},
		},
		{
			name:     "max_positive",
			input:    []byte{0xFF, 0x7F},
			expected: []float32{0.999969}, // 32767/32768
		},
		{
			name:     "max_negative",
			input:    []byte{0x00, 0x80},
			expected: []float32{-1.0}, // -32768/32768
		},
		{
			name:     "alternating",
			input:    []byte{0x00, 0x40, 0x00, 0xC0, 0x00, 0x40, 0x00, 0xC0},
			expected: []float32{0.5, -0.5, 0.5, -0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ConvertToFloat32(tt.input, 16)
			require.NoError(t, err)
			assert.Len(t, result, len(tt.expected))

			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], result[i], 0.0001)
			}
		})
	}
}

func TestConvertToFloat32Correctness24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []float32
	}{
		{
			name:     "zero",
			input:    []byte{0x00, 0x00, 0x00},
			expected: []float32{0.0},
		},
		{
			name:     "max_positive",
			input:    []byte{0xFF, 0xFF, 0x7F},
			expected: []float32{0.99999988}, // 8388607/8388608
		},
		{
			name:     "max_negative",
			input:    []byte{0x00, 0x00, 0x80},
			expected: []float32{-1.0}, // sign extension of 0x800000
		},
		{
			name:     "minus_one_lsb",
			input:    []byte{0xFF, 0xFF, 0xFF},
			expected: []float32{-1.0 / 8388608.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ConvertToFloat32(tt.input, 24)
			require.NoError(t, err)
			require.Len(t, result, len(tt.expected))

			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], result[i], 0.0001)
			}
		})
	}
}

func TestConvertToFloat32Correctness32Bit(t *testing.T) {
	input := []byte{
		0x00, 0x00, 0x00, 0x00, // 0
		0xFF, 0xFF, 0xFF, 0x7F, // max positive
		0x00, 0x00, 0x00, 0x80, // max negative
	}

	result, err := ConvertToFloat32(input, 32)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.InDelta(t, 0.0, result[0], 0.0001)
	assert.InDelta(t, 1.0, result[1], 0.0001)
	assert.InDelta(t, -1.0, result[2], 0.0001)
}

func TestConvertToFloat32UnsupportedBitDepth(t *testing.T) {
	for _, depth := range []int{0, 8, 12, 64} {
		_, err := ConvertToFloat32([]byte{0x00, 0x00}, depth)
		assert.Error(t, err, "bit depth %d", depth)
	}
}

func TestGetAudioDivisor(t *testing.T) {
	tests := []struct {
		bitDepth int
		want     float32
		wantErr  bool
	}{
		{bitDepth: 16, want: 32768.0},
		{bitDepth: 24, want: 8388608.0},
		{bitDepth: 32, want: 2147483648.0},
		{bitDepth: 8, wantErr: true},
	}

	for _, tt := range tests {
		divisor, err := getAudioDivisor(tt.bitDepth)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, divisor, 0.01)
	}
}
