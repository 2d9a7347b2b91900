// convert.go: PCM byte to float32 sample conversion.
package myaudio

import (
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// ConvertToFloat32 converts little-endian PCM bytes to float32 samples
// scaled to [-1.0, 1.0]. Bit depths 16, 24 and 32 are supported.
func ConvertToFloat32(sample []byte, bitDepth int) ([]float32, error) {
	switch bitDepth {
	case 16:
		return convert16BitToFloat32(sample), nil
	case 24:
		return convert24BitToFloat32(sample), nil
	case 32:
		return convert32BitToFloat32(sample), nil
	default:
		return nil, errors.Newf("unsupported audio bit depth: %d", bitDepth).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("operation", "convert_to_float32").
			Context("bit_depth", bitDepth).
			Context("supported_bit_depths", "16,24,32").
			Build()
	}
}

// convert16BitToFloat32 converts 16-bit samples to float32 values.
func convert16BitToFloat32(sample []byte) []float32 {
	length := len(sample) / 2
	float32Data := make([]float32, length)
	divisor := float32(32768.0)

	for i := 0; i < length; i++ {
		value := int16(sample[i*2]) | int16(sample[i*2+1])<<8
		float32Data[i] = float32(value) / divisor
	}

	return float32Data
}

// convert24BitToFloat32 converts 24-bit samples to float32 values.
func convert24BitToFloat32(sample []byte) []float32 {
	length := len(sample) / 3
	float32Data := make([]float32, length)
	divisor := float32(8388608.0)

	for i := 0; i < length; i++ {
		value := int32(sample[i*3]) | int32(sample[i*3+1])<<8 | int32(sample[i*3+2])<<16
		if (value & 0x00800000) > 0 {
			value |= ^0x00FFFFFF // Two's complement sign extension
		}
		float32Data[i] = float32(value) / divisor
	}

	return float32Data
}

// convert32BitToFloat32 converts 32-bit samples to float32 values.
func convert32BitToFloat32(sample []byte) []float32 {
	length := len(sample) / 4
	float32Data := make([]float32, length)
	divisor := float32(2147483648.0)

	for i := 0; i < length; i++ {
		value := int32(sample[i*4]) | int32(sample[i*4+1])<<8 | int32(sample[i*4+2])<<16 | int32(sample[i*4+3])<<24
		float32Data[i] = float32(value) / divisor
	}

	return float32Data
}

// getAudioDivisor returns the scaling divisor for the given bit depth.
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported audio bit depth: %d", bitDepth).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("operation", "get_audio_divisor").
			Build()
	}
}
