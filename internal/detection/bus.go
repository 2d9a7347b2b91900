// Package detection broadcasts persisted detections to live subscribers.
//
// The bus is single publisher, many subscriber. Each subscription owns a
// bounded channel; when a subscriber falls behind its events are dropped
// for that subscriber only, so a stalled SSE client can never hold up
// the ingest path.
package detection

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// Subscription is a live detection feed handle. Receive from C and
// select on Done to notice cancellation; the data channel is never
// closed so a late publish cannot panic.
type Subscription struct {
	C <-chan datastore.Detection

	ch      chan datastore.Detection
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	bus     *Bus
}

// Done is closed when the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel removes the subscription from the bus. Safe to call more than
// once and from any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

// Dropped returns how many detections were discarded because this
// subscriber's channel was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Bus fans persisted detections out to subscribers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
	dropped     atomic.Uint64
	logger      *slog.Logger
}

// NewBus creates a bus with the given per-subscriber buffer size.
// Sizes below one fall back to DefaultSubscriberBuffer.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = DefaultSubscriberBuffer
	}
	logger := logging.ForService("detection-bus")
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new live feed and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan datastore.Detection, b.bufferSize)
	sub := &Subscription{
		C:    ch,
		ch:   ch,
		done: make(chan struct{}),
		bus:  b,
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Debug("live subscriber added", "subscribers", count)
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Debug("live subscriber removed", "subscribers", count)
}

// Publish enqueues the detection to every live subscriber. The
// subscriber set is snapshotted under the lock and the sends happen
// outside it, so a slow receiver never blocks publishing. Full channels
// drop the event for that subscriber only.
func (b *Bus) Publish(detection datastore.Detection) {
	b.mu.Lock()
	snapshot := make([]*Subscription, 0, len(b.subscribers))
	for sub := range b.subscribers {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		select {
		case sub.ch <- detection:
		default:
			sub.dropped.Add(1)
			total := b.dropped.Add(1)
			if total%32 == 1 {
				b.logger.Warn("live subscriber falling behind, dropping detections",
					"subscriber_dropped", sub.dropped.Load(),
					"total_dropped", total)
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns the total number of per-subscriber drops.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
