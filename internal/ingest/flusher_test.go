package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushOnceRecoversBufferedDetections(t *testing.T) {
	settings := testServiceSettings(t)
	store := openStore(t, settings)
	flaky := &flakyStore{Interface: store, remaining: 2, saveErr: fmt.Errorf("database is locked")}
	buffer := NewRetryBuffer(10)
	service := New(settings, flaky, buffer, nil, nil, nil)

	base := time.Date(2025, 4, 12, 5, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		result, err := service.Ingest(context.Background(), testEvent(0.9, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, StatusBuffered, result.Status)
		} else {
			assert.Equal(t, StatusAccepted, result.Status)
		}
	}
	require.Equal(t, 2, buffer.Len())

	flusher := NewFlusher(service, time.Minute)
	delivered, requeued := flusher.FlushOnce(context.Background())
	assert.Equal(t, 2, delivered)
	assert.Zero(t, requeued)
	assert.Zero(t, buffer.Len())

	rows, err := store.DetectionsInRange(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, base.Add(time.Duration(i)*time.Minute), row.Timestamp.UTC(),
			"rows keep their original submission order")
	}
}

func TestFlushOnceRequeuesWhenStoreStillDown(t *testing.T) {
	settings := testServiceSettings(t)
	store := openStore(t, settings)
	flaky := &flakyStore{Interface: store, remaining: -1, saveErr: fmt.Errorf("database is locked")}
	buffer := NewRetryBuffer(10)
	service := New(settings, flaky, buffer, nil, nil, nil)

	_, err := service.Ingest(context.Background(), testEvent(0.9, time.Date(2025, 4, 12, 5, 30, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Equal(t, 1, buffer.Len())

	flusher := NewFlusher(service, time.Minute)
	delivered, requeued := flusher.FlushOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Equal(t, 1, requeued)
	require.Equal(t, 1, buffer.Len())

	entries := buffer.DrainAll()
	// One failed ingest plus one failed flush retry.
	assert.Equal(t, 2, entries[0].Attempts)
}

func TestFlushOnceDropsPermanentFailures(t *testing.T) {
	settings := testServiceSettings(t)
	store := openStore(t, settings)
	flaky := &flakyStore{Interface: store, remaining: -1, saveErr: fmt.Errorf("UNIQUE constraint failed: detections.id")}
	buffer := NewRetryBuffer(10)
	service := New(settings, flaky, buffer, nil, nil, nil)

	event := testEvent(0.9, time.Date(2025, 4, 12, 5, 30, 0, 0, time.UTC))
	buffer.Append(RetryEntry{Event: *event})

	flusher := NewFlusher(service, time.Minute)
	delivered, requeued := flusher.FlushOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Zero(t, requeued)
	assert.Zero(t, buffer.Len(), "poisoned entries never return to the buffer")
}

func TestFlusherStartStop(t *testing.T) {
	settings := testServiceSettings(t)
	store := openStore(t, settings)
	service := New(settings, store, NewRetryBuffer(10), nil, nil, nil)

	flusher := NewFlusher(service, 10*time.Millisecond)
	flusher.Start()
	time.Sleep(30 * time.Millisecond)
	flusher.Stop()
	flusher.Stop()
}
