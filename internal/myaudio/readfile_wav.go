package myaudio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

func readWAVInfo(file *os.File) (AudioInfo, error) {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return AudioInfo{}, errors.Newf("invalid WAV file format").
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("operation", "read_wav_info").
			Build()
	}

	if decoder.BitDepth != 16 && decoder.BitDepth != 24 && decoder.BitDepth != 32 {
		return AudioInfo{}, unsupportedBitDepthError(int(decoder.BitDepth), "read_wav_info")
	}

	if decoder.NumChans != 1 && decoder.NumChans != 2 {
		return AudioInfo{}, errors.Newf("unsupported number of channels: %d", decoder.NumChans).
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("operation", "read_wav_info").
			Build()
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return AudioInfo{}, err
	}

	bytesPerSample := int(decoder.BitDepth / 8)
	totalSamples := int(fileInfo.Size()) / bytesPerSample / int(decoder.NumChans)

	return AudioInfo{
		SampleRate:   int(decoder.SampleRate),
		TotalSamples: totalSamples,
		NumChannels:  int(decoder.NumChans),
		BitDepth:     int(decoder.BitDepth),
	}, nil
}

func readWAVBuffered(file *os.File, settings *conf.Settings, callback AudioChunkCallback) error {
	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return errors.Newf("input is not a valid WAV audio file").
			Component("myaudio").
			Category(errors.CategoryFileParsing).
			Context("operation", "read_wav_buffered").
			Build()
	}

	if settings.Debug {
		fmt.Println("File is valid wav: ", decoder.IsValidFile())
		fmt.Println("Sample rate:", decoder.SampleRate)
		fmt.Println("Bits per sample:", decoder.BitDepth)
		fmt.Println("Channels:", decoder.NumChans)
	}

	doResample := int(decoder.SampleRate) != conf.ModelSampleRate
	sourceSampleRate := int(decoder.SampleRate)

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return err
	}

	step, minLenSamples, secondsSamples := chunkGeometry(settings)

	var currentChunk []float32
	// Buffer eight complete analysis windows of audio. One window at
	// 48 kHz is 144000 samples, so 1,152,000 samples covers 24 seconds
	// and costs about 2.3 MB as int16.
	bufferSize := 1_152_000
	buf := &audio.IntBuffer{
		Data:   make([]int, bufferSize),
		Format: &audio.Format{SampleRate: conf.ModelSampleRate, NumChannels: 1},
	}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return err
		}

		if n == 0 {
			break
		}

		floatChunk := make([]float32, 0, n)
		for _, sample := range buf.Data[:n] {
			floatChunk = append(floatChunk, float32(sample)/divisor)
		}

		if doResample {
			floatChunk, err = ResampleAudio(floatChunk, sourceSampleRate, conf.ModelSampleRate)
			if err != nil {
				return fmt.Errorf("error resampling audio: %w", err)
			}
		}

		currentChunk = append(currentChunk, floatChunk...)

		currentChunk, err = emitChunks(currentChunk, step, secondsSamples, callback)
		if err != nil {
			return err
		}
	}

	return emitFinalChunk(currentChunk, minLenSamples, secondsSamples, callback)
}
