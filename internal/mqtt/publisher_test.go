package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/detection"
)

// fakeClient records published payloads.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	published []string
	topics    []string
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func mqttSettings(enabled bool) *conf.Settings {
	settings := &conf.Settings{}
	settings.Realtime.MQTT.Enabled = enabled
	settings.Realtime.MQTT.Broker = "tcp://localhost:1883"
	settings.Realtime.MQTT.Topic = "birds/seen"
	return settings
}

func TestNewPublisherDisabled(t *testing.T) {
	assert.Nil(t, NewPublisher(mqttSettings(false), &fakeClient{}, detection.NewBus(8)))
}

func TestPublisherForwardsDetections(t *testing.T) {
	client := &fakeClient{}
	bus := detection.NewBus(8)

	publisher := NewPublisher(mqttSettings(true), client, bus)
	require.NotNil(t, publisher)

	publisher.Start(context.Background())
	defer publisher.Stop()

	lat := 60.17
	bus.Publish(datastore.Detection{
		ID:             "det-1",
		ScientificName: "Turdus merula",
		CommonName:     "Eurasian Blackbird",
		Confidence:     0.91,
		Timestamp:      time.Date(2025, 5, 1, 14, 30, 0, 0, time.UTC),
		Latitude:       &lat,
	})

	require.Eventually(t, func() bool {
		return len(client.payloads()) == 1
	}, time.Second, 10*time.Millisecond)

	var message map[string]any
	require.NoError(t, json.Unmarshal([]byte(client.payloads()[0]), &message))
	assert.Equal(t, "Turdus merula", message["scientific_name"])
	assert.Equal(t, "2025-05-01T14:30:00Z", message["timestamp"])
	assert.InDelta(t, 60.17, message["latitude"], 1e-9)
	assert.Equal(t, "birds/seen", client.topics[0])
}

func TestPublisherStopCancelsSubscription(t *testing.T) {
	client := &fakeClient{}
	bus := detection.NewBus(8)

	publisher := NewPublisher(mqttSettings(true), client, bus)
	publisher.Start(context.Background())
	assert.Equal(t, 1, bus.SubscriberCount())

	publisher.Stop()
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.False(t, client.IsConnected())
}
