package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFlushInterval is the retry flush cadence when none is
// configured.
const DefaultFlushInterval = 5 * time.Second

// Flusher periodically drains the retry buffer and re-issues each
// entry through the ingest service. Stop exits between cycles, never
// mid-cycle, so a flush that has started always completes.
type Flusher struct {
	service  *Service
	buffer   *RetryBuffer
	interval time.Duration

	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewFlusher creates a flusher over the service's retry buffer.
func NewFlusher(service *Service, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Flusher{
		service:  service,
		buffer:   service.Buffer(),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the flush loop in its own goroutine.
func (f *Flusher) Start() {
	f.startOnce.Do(func() {
		f.started.Store(true)
		go f.run()
	})
}

// Stop signals the loop to exit at the next cycle boundary and waits
// for it to finish. Safe to call more than once.
func (f *Flusher) Stop() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
	if f.started.Load() {
		<-f.done
	}
}

func (f *Flusher) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	getLogger().Debug("Retry flusher started", "interval", f.interval)
	for {
		select {
		case <-f.stop:
			getLogger().Debug("Retry flusher stopped")
			return
		case <-ticker.C:
			f.FlushOnce(context.Background())
		}
	}
}

// FlushOnce drains the buffer and retries every entry in FIFO order.
// Entries that fail transiently are re-appended in their original
// order; entries that fail permanently are dropped with an error log
// so a poisoned event cannot clog the buffer forever. Returns how many
// entries were delivered and how many went back to the buffer.
func (f *Flusher) FlushOnce(ctx context.Context) (delivered, requeued int) {
	pending := f.buffer.DrainAll()
	if len(pending) == 0 {
		return 0, 0
	}

	var failed []RetryEntry
	for i := range pending {
		entry := pending[i]
		if _, err := f.service.deliver(ctx, &entry.Event, entry.Clip); err != nil {
			if !isRetryable(err) {
				getLogger().Error("Dropping buffered detection after permanent failure",
					"scientific_name", entry.Event.ScientificName,
					"attempts", entry.Attempts,
					"error", err)
				continue
			}
			entry.Attempts++
			failed = append(failed, entry)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		f.buffer.ReAppend(failed)
		getLogger().Warn("Retry flush incomplete",
			"delivered", delivered,
			"requeued", len(failed))
	} else if delivered > 0 {
		getLogger().Info("Retry flush delivered buffered detections",
			"delivered", delivered)
	}
	return delivered, len(failed)
}
