package myaudio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

func readFLACInfo(file *os.File) (AudioInfo, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return AudioInfo{}, err
	}

	return AudioInfo{
		SampleRate:   decoder.SampleRate,
		TotalSamples: int(decoder.TotalSamples),
		NumChannels:  decoder.NChannels,
		BitDepth:     decoder.BitsPerSample,
	}, nil
}

func readFLACBuffered(file *os.File, settings *conf.Settings, callback AudioChunkCallback) error {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return err
	}

	if settings.Debug {
		fmt.Println("Sample rate:", decoder.SampleRate)
		fmt.Println("Bits per sample:", decoder.BitsPerSample)
		fmt.Println("Channels:", decoder.NChannels)
	}

	doResample := decoder.SampleRate != conf.ModelSampleRate
	sourceSampleRate := decoder.SampleRate

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return err
	}

	step, minLenSamples, secondsSamples := chunkGeometry(settings)

	var currentChunk []float32

	bytesPerFrame := (decoder.BitsPerSample / 8) * decoder.NChannels
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		floatChunk := make([]float32, 0, len(frame)/bytesPerFrame)
		for i := 0; i+bytesPerFrame <= len(frame); i += bytesPerFrame {
			var sample int32
			switch decoder.BitsPerSample {
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(frame[i+2])<<16
				if sample&0x00800000 != 0 {
					sample |= ^int32(0x00FFFFFF)
				}
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
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
