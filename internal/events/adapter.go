package events

import (
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// EventPublisherAdapter adapts the EventBus to the errors.EventPublisher
// interface so the errors package can publish without importing events.
type EventPublisherAdapter struct {
	eventBus *EventBus
}

// NewEventPublisherAdapter creates a new adapter
func NewEventPublisherAdapter(eventBus *EventBus) *EventPublisherAdapter {
	return &EventPublisherAdapter{eventBus: eventBus}
}

// TryPublish accepts any value and forwards it when it is an ErrorEvent.
func (a *EventPublisherAdapter) TryPublish(event any) bool {
	if a.eventBus == nil {
		return false
	}
	errorEvent, ok := event.(ErrorEvent)
	if !ok {
		return false
	}
	return a.eventBus.TryPublish(errorEvent)
}

// InitializeErrorsIntegration wires the global event bus into the errors
// package. Call after Initialize; a nil bus leaves reporting disabled.
func InitializeErrorsIntegration() {
	eb := GetEventBus()
	if eb == nil {
		return
	}
	errors.SetEventPublisher(NewEventPublisherAdapter(eb))
}
