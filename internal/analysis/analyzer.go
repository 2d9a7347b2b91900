// Package analysis runs the classifier over captured or file audio and
// feeds the results into the detection ingest pipeline. It also hosts
// the realtime mode wiring that assembles all station components.
package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/birdnet"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/ingest"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/myaudio"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observability"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// pollInterval is how often the analyzer checks the capture buffer for
// a complete window.
const pollInterval = 100 * time.Millisecond

func getLogger() *slog.Logger {
	if logger := logging.ForService("analysis"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Classifier runs inference on one analysis window. The birdnet
// package implements it.
type Classifier interface {
	Predict(sample []float32) ([]birdnet.Result, error)
}

// Analyzer drains analysis windows from the capture buffer, classifies
// them and submits detections above the threshold to the ingest
// service.
type Analyzer struct {
	settings   *conf.Settings
	classifier Classifier
	sink       *ingest.Service
	metrics    *observability.Metrics
	logger     *slog.Logger

	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// NewAnalyzer creates an analyzer. Metrics may be nil.
func NewAnalyzer(settings *conf.Settings, classifier Classifier, sink *ingest.Service, metrics *observability.Metrics) *Analyzer {
	return &Analyzer{
		settings:   settings,
		classifier: classifier,
		sink:       sink,
		metrics:    metrics,
		logger:     getLogger(),
		quit:       make(chan struct{}),
	}
}

// ProcessWindow classifies one analysis window and ingests every
// prediction at or above the classifier threshold. The raw PCM bytes
// are attached to each event so the ingest path can export clips.
func (a *Analyzer) ProcessWindow(ctx context.Context, samples []float32, pcm []byte) error {
	started := time.Now()
	predictions, err := a.classifier.Predict(samples)
	elapsed := time.Since(started)

	if a.metrics != nil {
		a.metrics.Analyzer.ChunksProcessed.Inc()
		a.metrics.Analyzer.InferenceDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategorySystem).
			Context("operation", "predict").
			Build()
	}

	threshold := a.settings.BirdNET.Threshold
	for _, prediction := range predictions {
		confidence := float64(prediction.Confidence)
		if confidence < threshold {
			continue
		}

		event, err := observation.New(a.settings, 0, conf.CaptureLength, prediction.Species, confidence, "", elapsed)
		if err != nil {
			a.logger.Warn("Skipping unparseable prediction",
				"species", prediction.Species,
				"error", err)
			continue
		}
		event.AudioData = pcm

		result, err := a.sink.Ingest(ctx, &event)
		if err != nil {
			// Validation rejections here mean a per-species threshold
			// above the global one; not worth more than debug noise.
			if errors.IsCategory(err, errors.CategoryValidation) {
				a.logger.Debug("Detection rejected at ingest",
					"scientific_name", event.ScientificName,
					"error", err)
			} else {
				a.logger.Error("Detection ingest failed",
					"scientific_name", event.ScientificName,
					"error", err)
			}
			continue
		}

		if a.metrics != nil {
			a.metrics.Analyzer.DetectionsEmitted.Inc()
			a.metrics.Ingest.DetectionsTotal.WithLabelValues(string(result.Status)).Inc()
			a.metrics.Ingest.RetryBufferSize.Set(float64(a.sink.Buffer().Len()))
		}
		a.logger.Info("Detection",
			"scientific_name", event.ScientificName,
			"common_name", event.CommonName,
			"confidence", confidence,
			"status", result.Status)
	}
	return nil
}

// Run starts the drain loop over the capture buffer. It returns
// immediately; Stop ends the loop.
func (a *Analyzer) Run(buf *myaudio.AnalysisBuffer) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		ctx := context.Background()
		for {
			select {
			case <-a.quit:
				return
			case <-ticker.C:
				for buf.Ready() {
					samples, pcm, err := buf.TakeWindow()
					if err != nil {
						a.logger.Error("Failed to read analysis window", "error", err)
						break
					}
					if samples == nil {
						break
					}
					if err := a.ProcessWindow(ctx, samples, pcm); err != nil {
						a.logger.Error("Window analysis failed", "error", err)
					}
				}
			}
		}
	}()
}

// Stop ends the drain loop and waits for the in-flight window.
func (a *Analyzer) Stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
	})
	a.wg.Wait()
}
