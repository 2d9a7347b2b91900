package observation

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// WriteEventsTable writes detection events as a Raven selection table.
// The output goes to stdout when filename is empty.
func WriteEventsTable(settings *conf.Settings, events []Event, filename string) error {
	var w io.Writer
	if filename == "" {
		w = os.Stdout
	} else {
		if !strings.HasSuffix(filename, ".txt") {
			filename += ".txt"
		}
		file, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", filename, err)
		}
		defer file.Close()
		w = file
	}

	header := "Selection\tView\tChannel\tBegin File\tBegin Time (s)\tEnd Time (s)\tLow Freq (Hz)\tHigh Freq (Hz)\tSpecies Code\tCommon Name\tConfidence\n"
	if _, err := w.Write([]byte(header)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	selection := 0
	for i := range events {
		event := &events[i]
		if event.Confidence <= settings.BirdNET.Threshold {
			continue
		}
		selection++

		line := fmt.Sprintf("%d\tSpectrogram 1\t1\t%s\t%.1f\t%.1f\t0\t15000\t%s\t%s\t%.4f\n",
			selection, event.ClipName, event.BeginTime, event.EndTime, event.ScientificName, event.CommonName, event.Confidence)
		if _, err := w.Write([]byte(line)); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}

	return nil
}

// WriteEventsCsv writes detection events in CSV format. The output goes to
// stdout when filename is empty.
func WriteEventsCsv(settings *conf.Settings, events []Event, filename string) error {
	var w io.Writer
	if filename == "" {
		w = os.Stdout
	} else {
		if !strings.HasSuffix(filename, ".csv") {
			filename += ".csv"
		}
		file, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", filename, err)
		}
		defer file.Close()
		w = file
	}

	header := "Start (s),End (s),Scientific name,Common name,Confidence\n"
	if _, err := w.Write([]byte(header)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range events {
		event := &events[i]
		if event.Confidence <= settings.BirdNET.Threshold {
			continue
		}

		line := fmt.Sprintf("%f,%f,%s,%s,%.4f\n",
			event.BeginTime, event.EndTime, event.ScientificName, event.CommonName, event.Confidence)
		if _, err := w.Write([]byte(line)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return nil
}
