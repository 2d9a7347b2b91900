package notification

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window event counter. Allow returns false
// once maxEvents have fired within the window.
type RateLimiter struct {
	window    time.Duration
	maxEvents int
	events    []time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a rate limiter. Non-positive arguments fall
// back to the service defaults.
func NewRateLimiter(window time.Duration, maxEvents int) *RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if maxEvents <= 0 {
		maxEvents = DefaultRateLimitMaxEvents
	}
	return &RateLimiter{
		window:    window,
		maxEvents: maxEvents,
		events:    make([]time.Time, 0, maxEvents),
	}
}

// Allow records an event if the window has capacity and reports whether
// it was admitted.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.events[:0]
	for _, ts := range rl.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rl.events = kept

	if len(rl.events) >= rl.maxEvents {
		return false
	}
	rl.events = append(rl.events, now)
	return true
}
