package telemetry

import (
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/events"
)

// ErrorEventConsumer forwards error events from the event bus to
// Sentry. A no-op while telemetry is disabled.
type ErrorEventConsumer struct{}

// NewErrorEventConsumer creates the consumer.
func NewErrorEventConsumer() *ErrorEventConsumer {
	return &ErrorEventConsumer{}
}

// Name identifies the consumer on the event bus.
func (c *ErrorEventConsumer) Name() string {
	return "telemetry"
}

// ProcessEvent reports the event's error tagged with its component.
func (c *ErrorEventConsumer) ProcessEvent(event events.ErrorEvent) error {
	if err := event.GetError(); err != nil {
		CaptureError(err, event.GetComponent())
	}
	return nil
}
