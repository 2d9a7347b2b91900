// Package errors - event bus integration. The errors package publishes
// through a narrow interface so it never imports the events package.
package errors

import (
	"sync/atomic"
)

// EventPublisher is the publishing side of the event bus as seen from here.
type EventPublisher interface {
	TryPublish(event any) bool
}

var globalEventPublisher atomic.Pointer[EventPublisher]

// hasActiveReporting gates the expensive Build path; it is set when a
// publisher is registered and cleared when it is removed.
var hasActiveReporting atomic.Bool

// SetEventPublisher sets the global event publisher. Called by the events
// package during initialization; pass nil to disable reporting.
func SetEventPublisher(publisher EventPublisher) {
	if publisher == nil {
		globalEventPublisher.Store(nil)
		hasActiveReporting.Store(false)
		return
	}
	globalEventPublisher.Store(&publisher)
	hasActiveReporting.Store(true)
}

// ReportingActive reports whether a publisher is registered.
func ReportingActive() bool {
	return hasActiveReporting.Load()
}

func publishToEventBus(ee *EnhancedError) {
	publisherPtr := globalEventPublisher.Load()
	if publisherPtr == nil {
		return
	}
	publisher := *publisherPtr
	if publisher == nil {
		return
	}
	publisher.TryPublish(ee)
}
