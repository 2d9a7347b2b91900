// readfile.go: chunked reading of audio files for offline analysis.
package myaudio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// AudioInfo holds basic properties of an audio file.
type AudioInfo struct {
	SampleRate   int
	TotalSamples int
	NumChannels  int
	BitDepth     int
}

// AudioChunkCallback receives one analysis window of float32 samples at
// the model sample rate. Returning an error aborts the read.
type AudioChunkCallback func([]float32) error

// GetAudioInfo returns properties of a WAV or FLAC file.
func GetAudioInfo(filePath string) (AudioInfo, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	file, err := os.Open(filePath)
	if err != nil {
		return AudioInfo{}, err
	}
	defer file.Close()

	switch ext {
	case ".wav":
		return readWAVInfo(file)
	case ".flac":
		return readFLACInfo(file)
	default:
		return AudioInfo{}, errors.Newf("unsupported audio format: %s", ext).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("operation", "get_audio_info").
			Build()
	}
}

// ReadAudioFileBuffered streams a WAV or FLAC file through the callback in
// analysis-window sized chunks at the model sample rate, resampling when
// the source rate differs. The final partial chunk is zero-padded when it
// covers at least half a window.
func ReadAudioFileBuffered(filePath string, settings *conf.Settings, callback AudioChunkCallback) error {
	ext := strings.ToLower(filepath.Ext(filePath))

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	switch ext {
	case ".wav":
		return readWAVBuffered(file, settings, callback)
	case ".flac":
		return readFLACBuffered(file, settings, callback)
	default:
		return errors.Newf("unsupported audio format: %s", ext).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("operation", "read_audio_file").
			Context("path", filePath).
			Build()
	}
}

// chunkGeometry returns step, minimum and full chunk lengths in samples
// at the model rate for the configured overlap.
func chunkGeometry(settings *conf.Settings) (step, minLenSamples, secondsSamples int) {
	step = int((conf.CaptureLength - settings.BirdNET.Overlap) * float64(conf.ModelSampleRate))
	if step <= 0 {
		step = conf.CaptureLength * conf.ModelSampleRate
	}
	minLenSamples = int(1.5 * float64(conf.ModelSampleRate))
	secondsSamples = conf.CaptureLength * conf.ModelSampleRate
	return step, minLenSamples, secondsSamples
}

// emitChunks feeds complete windows to the callback and returns the
// remainder for the next iteration.
func emitChunks(currentChunk []float32, step, secondsSamples int, callback AudioChunkCallback) ([]float32, error) {
	for len(currentChunk) >= secondsSamples {
		if err := callback(currentChunk[:secondsSamples]); err != nil {
			return nil, err
		}
		currentChunk = currentChunk[step:]
	}
	return currentChunk, nil
}

// emitFinalChunk pads and emits the trailing partial window when it is
// long enough to be worth classifying.
func emitFinalChunk(currentChunk []float32, minLenSamples, secondsSamples int, callback AudioChunkCallback) error {
	if len(currentChunk) < minLenSamples {
		return nil
	}
	if len(currentChunk) < secondsSamples {
		padding := make([]float32, secondsSamples-len(currentChunk))
		currentChunk = append(currentChunk, padding...)
	}
	return callback(currentChunk)
}

func unsupportedBitDepthError(bitDepth int, operation string) error {
	return errors.Newf("unsupported bit depth: %d", bitDepth).
		Component("myaudio").
		Category(errors.CategoryFileParsing).
		Context("operation", operation).
		Build()
}
