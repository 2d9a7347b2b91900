package analysis

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/birdnet"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/ingest"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/myaudio"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// FileAnalysis classifies one audio file chunk by chunk and stores the
// detections above the threshold. Events are timestamped relative to
// the file start so a recording analyzed twice produces the same rows.
func FileAnalysis(settings *conf.Settings, path string) error {
	logger := getLogger()

	info, err := os.Stat(path)
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "stat_input").
			Build()
	}
	if info.IsDir() {
		return DirectoryAnalysis(settings, path)
	}

	store := datastore.New(settings)
	if store == nil {
		return errors.Newf("no detection store configured").
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	classifier, err := birdnet.NewBirdNET(settings)
	if err != nil {
		return err
	}
	defer classifier.Delete()

	buffer := ingest.NewRetryBuffer(settings.Realtime.Ingest.BufferMaxSize)
	sink := ingest.New(settings, store, buffer, nil, nil, nil)

	audioInfo, err := myaudio.GetAudioInfo(path)
	if err != nil {
		return err
	}
	// The recording is assumed to end at the file's mtime.
	fileStart := info.ModTime()
	if audioInfo.SampleRate > 0 {
		fileStart = fileStart.Add(-time.Duration(audioInfo.TotalSamples/audioInfo.SampleRate) * time.Second)
	}

	ctx := context.Background()
	step := float64(conf.CaptureLength) - settings.BirdNET.Overlap
	if step <= 0 {
		step = conf.CaptureLength
	}

	chunkIndex := 0
	detected := 0
	err = myaudio.ReadAudioFileBuffered(path, settings, func(chunk []float32) error {
		begin := float64(chunkIndex) * step
		chunkIndex++

		predictions, perr := classifier.Predict(chunk)
		if perr != nil {
			return perr
		}
		for _, prediction := range predictions {
			confidence := float64(prediction.Confidence)
			if confidence < settings.BirdNET.Threshold {
				continue
			}
			scientificName, commonName, eerr := observation.ParseSpeciesString(prediction.Species)
			if eerr != nil {
				logger.Warn("Skipping unparseable prediction", "species", prediction.Species, "error", eerr)
				continue
			}
			timestamp := fileStart.Add(time.Duration(begin * float64(time.Second)))
			_, week := timestamp.ISOWeek()
			// File mode stores rows only; clips stay in the source file.
			event := observation.Event{
				SourceNode:     settings.Main.Name,
				SpeciesTensor:  prediction.Species,
				ScientificName: scientificName,
				CommonName:     commonName,
				Confidence:     confidence,
				Timestamp:      timestamp,
				Threshold:      settings.BirdNET.Threshold,
				Week:           week,
				Sensitivity:    settings.BirdNET.Sensitivity,
				Overlap:        settings.BirdNET.Overlap,
				BeginTime:      begin,
				EndTime:        begin + conf.CaptureLength,
			}

			result, ierr := sink.Ingest(ctx, &event)
			if ierr != nil {
				if errors.IsCategory(ierr, errors.CategoryValidation) {
					continue
				}
				return ierr
			}
			detected++
			fmt.Printf("%7.1fs  %-30s %-25s %.2f  %s\n",
				begin, event.ScientificName, event.CommonName, confidence, result.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("File analysis complete",
		"path", path,
		"chunks", chunkIndex,
		"detections", detected)
	return nil
}

// DirectoryAnalysis walks a directory tree and analyzes every WAV and
// FLAC file in it. A file that fails to analyze is logged and skipped
// so one corrupt recording cannot abort a batch run.
func DirectoryAnalysis(settings *conf.Settings, root string) error {
	logger := getLogger()

	analyzed := 0
	skipped := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav", ".flac":
		default:
			return nil
		}

		if aerr := FileAnalysis(settings, path); aerr != nil {
			logger.Error("Skipping file after analysis failure", "path", path, "error", aerr)
			skipped++
			return nil
		}
		analyzed++
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "walk_directory").
			Build()
	}

	logger.Info("Directory analysis complete",
		"root", root,
		"analyzed", analyzed,
		"skipped", skipped)
	return nil
}
