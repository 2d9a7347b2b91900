package notification

import (
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/events"
)

// ErrorEventConsumer turns error events from the event bus into
// notification center entries.
type ErrorEventConsumer struct {
	service *Service
}

// NewErrorEventConsumer creates a consumer publishing into the given
// service.
func NewErrorEventConsumer(service *Service) *ErrorEventConsumer {
	return &ErrorEventConsumer{service: service}
}

// Name identifies the consumer on the event bus.
func (c *ErrorEventConsumer) Name() string {
	return "notification"
}

// ProcessEvent creates an error notification for the event.
func (c *ErrorEventConsumer) ProcessEvent(event events.ErrorEvent) error {
	err := event.GetError()
	if err == nil {
		return nil
	}
	_, cerr := c.service.CreateErrorNotification(err)
	return cerr
}
