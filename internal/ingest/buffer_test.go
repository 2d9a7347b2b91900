package ingest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

func retryEntry(name string) RetryEntry {
	return RetryEntry{
		Event: observation.Event{
			SpeciesTensor:  name + "_Common",
			ScientificName: name,
			Confidence:     0.8,
			Timestamp:      time.Date(2025, 4, 12, 5, 0, 0, 0, time.UTC),
		},
	}
}

func TestRetryBufferFIFO(t *testing.T) {
	buffer := NewRetryBuffer(10)
	buffer.Append(retryEntry("first"))
	buffer.Append(retryEntry("second"))
	buffer.Append(retryEntry("third"))

	drained := buffer.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, "first", drained[0].Event.ScientificName)
	assert.Equal(t, "second", drained[1].Event.ScientificName)
	assert.Equal(t, "third", drained[2].Event.ScientificName)
	assert.Zero(t, buffer.Len(), "drain empties the buffer")
}

func TestRetryBufferEvictsOldestWhenFull(t *testing.T) {
	buffer := NewRetryBuffer(3)
	for i := 0; i < 5; i++ {
		buffer.Append(retryEntry(fmt.Sprintf("species-%d", i)))
	}

	assert.Equal(t, 3, buffer.Len())
	assert.Equal(t, uint64(2), buffer.Evicted())

	drained := buffer.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, "species-2", drained[0].Event.ScientificName, "the two oldest were evicted")
	assert.Equal(t, "species-4", drained[2].Event.ScientificName)
}

func TestRetryBufferReAppendPreservesOrder(t *testing.T) {
	buffer := NewRetryBuffer(10)
	buffer.Append(retryEntry("queued"))

	failed := []RetryEntry{retryEntry("fail-a"), retryEntry("fail-b")}
	buffer.ReAppend(failed)

	drained := buffer.DrainAll()
	require.Len(t, drained, 3)
	assert.Equal(t, "queued", drained[0].Event.ScientificName)
	assert.Equal(t, "fail-a", drained[1].Event.ScientificName)
	assert.Equal(t, "fail-b", drained[2].Event.ScientificName)
}

func TestRetryBufferDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultBufferSize, NewRetryBuffer(0).Capacity())
	assert.Equal(t, DefaultBufferSize, NewRetryBuffer(-5).Capacity())
	assert.Equal(t, 7, NewRetryBuffer(7).Capacity())
}

func TestRetryBufferNeverExceedsCapacity(t *testing.T) {
	buffer := NewRetryBuffer(4)
	for i := 0; i < 50; i++ {
		buffer.Append(retryEntry(fmt.Sprintf("species-%d", i)))
		assert.LessOrEqual(t, buffer.Len(), 4)
	}
}
