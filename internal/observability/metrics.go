// Package observability collects Prometheus metrics for the detection
// pipeline and serves them over the telemetry endpoint.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// IngestMetrics tracks the detection ingest path.
type IngestMetrics struct {
	DetectionsTotal *prometheus.CounterVec // status: accepted, filtered, buffered
	RetryBufferSize prometheus.Gauge
	SaveDuration    prometheus.Histogram
}

// AnalyzerMetrics tracks the classifier loop.
type AnalyzerMetrics struct {
	ChunksProcessed   prometheus.Counter
	InferenceDuration prometheus.Histogram
	DetectionsEmitted prometheus.Counter
}

// BusMetrics tracks the live detection bus.
type BusMetrics struct {
	Subscribers   prometheus.Gauge
	DroppedEvents prometheus.Counter
}

// WeatherMetrics tracks the weather poller.
type WeatherMetrics struct {
	PollsTotal      prometheus.Counter
	PollErrorsTotal prometheus.Counter
}

// Metrics holds all collectors on one private registry so tests can
// create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	Ingest   IngestMetrics
	Analyzer AnalyzerMetrics
	Bus      BusMetrics
	Weather  WeatherMetrics
}

// NewMetrics creates and registers all collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Ingest = IngestMetrics{
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdnet_ingest_detections_total",
			Help: "Detection ingest outcomes by status.",
		}, []string{"status"}),
		RetryBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "birdnet_ingest_retry_buffer_size",
			Help: "Detections currently waiting in the retry buffer.",
		}),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdnet_ingest_save_duration_seconds",
			Help:    "Detection persistence latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.Analyzer = AnalyzerMetrics{
		ChunksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdnet_analyzer_chunks_total",
			Help: "Audio chunks run through the classifier.",
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdnet_analyzer_inference_duration_seconds",
			Help:    "Classifier inference latency per chunk.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		DetectionsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdnet_analyzer_detections_total",
			Help: "Detections above threshold emitted by the analyzer.",
		}),
	}

	m.Bus = BusMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "birdnet_bus_subscribers",
			Help: "Live detection bus subscribers.",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdnet_bus_dropped_events_total",
			Help: "Events dropped because a subscriber fell behind.",
		}),
	}

	m.Weather = WeatherMetrics{
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdnet_weather_polls_total",
			Help: "Weather provider polls.",
		}),
		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdnet_weather_poll_errors_total",
			Help: "Failed weather provider polls.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.Ingest.DetectionsTotal,
		m.Ingest.RetryBufferSize,
		m.Ingest.SaveDuration,
		m.Analyzer.ChunksProcessed,
		m.Analyzer.InferenceDuration,
		m.Analyzer.DetectionsEmitted,
		m.Bus.Subscribers,
		m.Bus.DroppedEvents,
		m.Weather.PollsTotal,
		m.Weather.PollErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(collector); err != nil {
			return nil, errors.New(err).
				Component("observability").
				Category(errors.CategoryValidation).
				Context("operation", "register_collector").
				Build()
		}
	}
	return m, nil
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
