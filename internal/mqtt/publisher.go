package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/detection"
)

// detectionMessage is the JSON payload published per detection.
type detectionMessage struct {
	ID             string   `json:"id"`
	ScientificName string   `json:"scientific_name"`
	CommonName     string   `json:"common_name"`
	Confidence     float64  `json:"confidence"`
	Timestamp      string   `json:"timestamp"`
	SourceNode     string   `json:"source_node,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// Publisher forwards detections from the live bus to the broker topic.
// It is a bus subscriber like any SSE client, so a dead broker can only
// ever drop its own events.
type Publisher struct {
	client Client
	topic  string
	bus    *detection.Bus
	sub    *detection.Subscription
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPublisher creates a publisher over an existing client. Returns nil
// when MQTT is disabled in the settings.
func NewPublisher(settings *conf.Settings, client Client, bus *detection.Bus) *Publisher {
	if !settings.Realtime.MQTT.Enabled {
		return nil
	}
	topic := settings.Realtime.MQTT.Topic
	if topic == "" {
		topic = "birdnet/detections"
	}
	return &Publisher{
		client: client,
		topic:  topic,
		bus:    bus,
		logger: getLogger(),
	}
}

// Start connects to the broker and begins forwarding detections. A
// failed initial connect is logged, not fatal: the client reconnects in
// the background.
func (p *Publisher) Start(ctx context.Context) {
	if err := p.client.Connect(ctx); err != nil {
		p.logger.Warn("Initial MQTT connect failed, will retry in background", "error", err)
	}

	p.sub = p.bus.Subscribe()
	p.wg.Add(1)
	go p.forward()
}

// Stop cancels the bus subscription and disconnects from the broker.
func (p *Publisher) Stop() {
	if p.sub != nil {
		p.sub.Cancel()
	}
	p.wg.Wait()
	p.client.Disconnect()
}

func (p *Publisher) forward() {
	defer p.wg.Done()

	for {
		select {
		case detected := <-p.sub.C:
			p.publish(&detected)
		case <-p.sub.Done():
			return
		}
	}
}

func (p *Publisher) publish(detected *datastore.Detection) {
	message := detectionMessage{
		ID:             detected.ID,
		ScientificName: detected.ScientificName,
		CommonName:     detected.CommonName,
		Confidence:     detected.Confidence,
		Timestamp:      detected.Timestamp.UTC().Format(time.RFC3339),
		SourceNode:     detected.SourceNode,
		Latitude:       detected.Latitude,
		Longitude:      detected.Longitude,
	}

	payload, err := json.Marshal(&message)
	if err != nil {
		p.logger.Error("Failed to marshal detection message", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Publish(ctx, p.topic, string(payload)); err != nil {
		p.logger.Warn("Failed to publish detection",
			"topic", p.topic,
			"scientific_name", detected.ScientificName,
			"error", err)
	}
}
