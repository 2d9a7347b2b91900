package events

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	defaultDedupWindow     = time.Minute
	defaultDedupMaxEntries = 1024
)

// errorDeduplicator suppresses repeats of the same error within a time
// window, keyed by component, category and message. A classifier that
// fails on every window would otherwise flood the consumers.
type errorDeduplicator struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	lastSeen   map[uint64]time.Time
}

func newErrorDeduplicator(window time.Duration, maxEntries int) *errorDeduplicator {
	return &errorDeduplicator{
		window:     window,
		maxEntries: maxEntries,
		lastSeen:   make(map[uint64]time.Time),
	}
}

func (ed *errorDeduplicator) shouldProcess(event ErrorEvent) bool {
	key := ed.hash(event)
	now := time.Now()

	ed.mu.Lock()
	defer ed.mu.Unlock()

	if seen, ok := ed.lastSeen[key]; ok && now.Sub(seen) < ed.window {
		return false
	}

	if len(ed.lastSeen) >= ed.maxEntries {
		ed.evictExpired(now)
		if len(ed.lastSeen) >= ed.maxEntries {
			// Still full of fresh entries; accept rather than lose signal.
			return true
		}
	}

	ed.lastSeen[key] = now
	return true
}

func (ed *errorDeduplicator) hash(event ErrorEvent) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(event.GetComponent()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(event.GetCategory()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(event.GetMessage()))
	return h.Sum64()
}

func (ed *errorDeduplicator) evictExpired(now time.Time) {
	for key, seen := range ed.lastSeen {
		if now.Sub(seen) >= ed.window {
			delete(ed.lastSeen, key)
		}
	}
}
