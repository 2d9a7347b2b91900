// Package ingest persists detection events: validation, regional
// filtering, clip export, the store transaction, and live fan-out,
// with a bounded retry buffer for transient persistence failures.
package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// DefaultBufferSize is the retry buffer capacity when none is
// configured.
const DefaultBufferSize = 100

// getLogger returns the ingest service logger, falling back to the
// default logger before logging.Init has run.
func getLogger() *slog.Logger {
	if l := logging.ForService("ingest"); l != nil {
		return l
	}
	return slog.Default()
}

// ClipInfo describes an audio clip already written to disk for a
// detection. Path is relative to the clip export root.
type ClipInfo struct {
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	RecordingStart  time.Time
}

// RetryEntry is one failed ingest waiting for the next flush cycle.
// When the clip was written before the failure, Clip carries its
// metadata and the event's audio data is dropped; the retry reuses the
// file on disk.
type RetryEntry struct {
	Event observation.Event
	Clip  *ClipInfo
	// Attempts counts failed deliveries: 1 when the entry is buffered
	// (the original ingest failed), plus one per failed flush retry.
	Attempts   int
	FirstTried time.Time
}

// RetryBuffer is a bounded FIFO of failed ingests. Appending to a full
// buffer evicts the oldest entry. The ingest path and the flusher's
// failure re-append are producers; the flusher is the only drainer.
// Entries are lost on process exit, a deliberate best effort trade.
type RetryBuffer struct {
	mu      sync.Mutex
	entries []RetryEntry
	max     int
	evicted uint64
}

// NewRetryBuffer creates a buffer with the given capacity, falling back
// to DefaultBufferSize when the capacity is not positive.
func NewRetryBuffer(maxSize int) *RetryBuffer {
	if maxSize <= 0 {
		maxSize = DefaultBufferSize
	}
	return &RetryBuffer{max: maxSize}
}

// Append adds an entry, evicting the oldest when the buffer is full.
func (b *RetryBuffer) Append(entry RetryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.append(entry)
}

// ReAppend returns failed entries to the end of the buffer, preserving
// their relative order.
func (b *RetryBuffer) ReAppend(failed []RetryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range failed {
		b.append(failed[i])
	}
}

func (b *RetryBuffer) append(entry RetryEntry) {
	if len(b.entries) >= b.max {
		oldest := b.entries[0]
		b.entries = append(b.entries[:0], b.entries[1:]...)
		b.evicted++
		getLogger().Warn("Retry buffer full, evicting oldest detection",
			"scientific_name", oldest.Event.ScientificName,
			"timestamp", oldest.Event.Timestamp,
			"capacity", b.max)
	}
	b.entries = append(b.entries, entry)
}

// DrainAll atomically removes and returns every buffered entry in FIFO
// order.
func (b *RetryBuffer) DrainAll() []RetryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.entries
	b.entries = nil
	return drained
}

// Len returns the number of buffered entries.
func (b *RetryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Capacity returns the maximum number of entries the buffer holds.
func (b *RetryBuffer) Capacity() int {
	return b.max
}

// Evicted returns how many entries were discarded to make room.
func (b *RetryBuffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
