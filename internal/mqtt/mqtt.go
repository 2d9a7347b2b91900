// Package mqtt publishes persisted detections to an MQTT broker.
package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// Client is the broker connection used by the publisher. The paho
// implementation lives in client.go; tests substitute their own.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the given topic.
	Publish(ctx context.Context, topic, payload string) error

	// IsConnected reports whether the client currently holds a broker
	// connection.
	IsConnected() bool

	// Disconnect closes the connection and stops reconnect attempts.
	Disconnect()
}

// Config holds the client configuration.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string
	Retain            bool
	ReconnectCooldown time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
}

// DefaultConfig returns a Config with the default timeouts.
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
	}
}

func getLogger() *slog.Logger {
	if logger := logging.ForService("mqtt"); logger != nil {
		return logger
	}
	return slog.Default()
}
