package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	metrics, err := NewMetrics()
	require.NoError(t, err)

	metrics.Ingest.DetectionsTotal.WithLabelValues("accepted").Inc()
	metrics.Ingest.RetryBufferSize.Set(3)
	metrics.Analyzer.ChunksProcessed.Inc()
	metrics.Bus.Subscribers.Set(2)
	metrics.Weather.PollsTotal.Inc()

	families, err := metrics.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["birdnet_ingest_detections_total"])
	assert.True(t, names["birdnet_ingest_retry_buffer_size"])
	assert.True(t, names["birdnet_analyzer_chunks_total"])
	assert.True(t, names["birdnet_bus_subscribers"])
	assert.True(t, names["birdnet_weather_polls_total"])
	assert.True(t, names["go_goroutines"], "runtime collectors registered")
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	first, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewMetrics()
	require.NoError(t, err, "second instance must not collide with the first")

	first.Ingest.DetectionsTotal.WithLabelValues("filtered").Inc()
}

func TestHandlerServesTextFormat(t *testing.T) {
	metrics, err := NewMetrics()
	require.NoError(t, err)
	metrics.Ingest.DetectionsTotal.WithLabelValues("accepted").Add(5)

	recorder := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, recorder.Code)
	assert.True(t, strings.Contains(recorder.Body.String(), "birdnet_ingest_detections_total"))
}
