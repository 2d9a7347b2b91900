// analysis_buffer.go: ring buffer that accumulates PCM frames into
// fixed-duration analysis windows.
package myaudio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"errors"

	"github.com/smallnest/ringbuffer"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

const (
	maxWriteRetries          = 3
	writeRetryDelay          = time.Millisecond * 10
	warningCapacityThreshold = 0.9 // 90% full
)

// AnalysisBuffer accumulates raw PCM bytes and hands them out one
// non-overlapping analysis window at a time. It is single producer,
// single consumer: the capture or ingest task appends, the analyzer
// drains.
type AnalysisBuffer struct {
	mu sync.Mutex
	rb *ringbuffer.RingBuffer

	sampleRate    int
	channels      int
	windowSeconds int
	windowBytes   int

	warningCounter int
	droppedBytes   atomic.Uint64
	logger         *slog.Logger
}

// NewAnalysisBuffer allocates a buffer holding one analysis window of
// sampleRate x windowSeconds frames, with headroom for the producer to
// run ahead of the analyzer.
func NewAnalysisBuffer(sampleRate, channels, windowSeconds int) (*AnalysisBuffer, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if channels < 1 || channels > 2 {
		return nil, errors.New("channels must be 1 or 2")
	}
	if windowSeconds <= 0 {
		return nil, errors.New("window length must be positive")
	}

	windowBytes := sampleRate * (conf.BitDepth / 8) * channels * windowSeconds

	logger := logging.ForService("myaudio")
	if logger == nil {
		logger = slog.Default()
	}

	return &AnalysisBuffer{
		// 3x window capacity to absorb bursts without underruns.
		rb:            ringbuffer.New(windowBytes * 3),
		sampleRate:    sampleRate,
		channels:      channels,
		windowSeconds: windowSeconds,
		windowBytes:   windowBytes,
		logger:        logger,
	}, nil
}

// WindowSamples returns the number of mono samples in one analysis window.
func (b *AnalysisBuffer) WindowSamples() int {
	return b.sampleRate * b.windowSeconds
}

// WindowBytes returns the size of one analysis window in bytes.
func (b *AnalysisBuffer) WindowBytes() int {
	return b.windowBytes
}

// Append writes PCM data into the buffer. When the buffer stays full
// across retries the data is dropped and counted rather than blocking
// the capture callback.
func (b *AnalysisBuffer) Append(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	b.mu.Lock()
	capacity := b.rb.Capacity()
	used := b.rb.Length()
	b.mu.Unlock()

	if capacity > 0 {
		capacityUsed := float64(used) / float64(capacity)
		if capacityUsed > warningCapacityThreshold {
			b.warningCounter++
			if b.warningCounter%32 == 1 {
				b.logger.Warn("analysis buffer nearly full",
					"used_bytes", used,
					"capacity_bytes", capacity,
					"used_pct", capacityUsed*100)
			}
		}
	}

	for retry := 0; retry < maxWriteRetries; retry++ {
		b.mu.Lock()
		n, err := b.rb.Write(data)
		b.mu.Unlock()

		if err == nil {
			if n < len(data) {
				b.droppedBytes.Add(uint64(len(data) - n))
			}
			return nil
		}

		if !errors.Is(err, ringbuffer.ErrIsFull) {
			b.logger.Warn("unexpected analysis buffer write error", "error", err)
		}

		if retry < maxWriteRetries-1 {
			time.Sleep(writeRetryDelay)
		}
	}

	b.droppedBytes.Add(uint64(len(data)))
	b.logger.Warn("analysis buffer full, dropping PCM data", "dropped_bytes", len(data))
	return errors.New("analysis buffer full")
}

// Ready reports whether a full analysis window is available.
func (b *AnalysisBuffer) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rb.Length() >= b.windowBytes
}

// TakeWindow atomically drains exactly one analysis window and converts
// it to float32 samples in [-1, 1]. Stereo input is downmixed to mono by
// averaging the channel pair. The raw little-endian PCM bytes are
// returned alongside the samples so callers can attach them to ingest
// events. It returns nil slices when a full window is not yet available.
func (b *AnalysisBuffer) TakeWindow() ([]float32, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rb.Length() < b.windowBytes {
		return nil, nil, nil
	}

	data := make([]byte, b.windowBytes)
	if _, err := b.rb.Read(data); err != nil {
		return nil, nil, err
	}

	samples, err := ConvertToFloat32(data, conf.BitDepth)
	if err != nil {
		return nil, nil, err
	}

	if b.channels == 2 {
		samples = downmixStereo(samples)
	}
	return samples, data, nil
}

// DroppedBytes returns the total number of PCM bytes dropped on overflow.
func (b *AnalysisBuffer) DroppedBytes() uint64 {
	return b.droppedBytes.Load()
}

// Reset discards all buffered data.
func (b *AnalysisBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rb.Reset()
}

// downmixStereo averages interleaved stereo sample pairs into mono.
func downmixStereo(samples []float32) []float32 {
	mono := make([]float32, len(samples)/2)
	for i := range mono {
		mono[i] = (samples[i*2] + samples[i*2+1]) / 2
	}
	return mono
}
