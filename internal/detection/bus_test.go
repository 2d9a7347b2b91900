package detection

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

func testDetection(id string) datastore.Detection {
	return datastore.Detection{
		ID:             id,
		SpeciesTensor:  "Turdus merula_Eurasian Blackbird",
		ScientificName: "Turdus merula",
		CommonName:     "Eurasian Blackbird",
		Confidence:     0.91,
		Timestamp:      time.Date(2025, 4, 12, 5, 30, 0, 0, time.UTC),
	}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	first := bus.Subscribe()
	second := bus.Subscribe()
	defer first.Cancel()
	defer second.Cancel()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(testDetection("a"))

	select {
	case got := <-first.C:
		assert.Equal(t, "a", got.ID)
	default:
		t.Fatal("first subscriber did not receive the detection")
	}
	select {
	case got := <-second.C:
		assert.Equal(t, "a", got.ID)
	default:
		t.Fatal("second subscriber did not receive the detection")
	}
}

func TestBusDropsOnlyForFullSubscriber(t *testing.T) {
	bus := NewBus(1)
	slow := bus.Subscribe()
	fast := bus.Subscribe()
	defer slow.Cancel()
	defer fast.Cancel()

	bus.Publish(testDetection("a"))
	// The fast subscriber drains, the slow one leaves its buffer full.
	<-fast.C
	bus.Publish(testDetection("b"))

	assert.Equal(t, uint64(1), slow.Dropped(), "second publish overflows the slow subscriber")
	assert.Zero(t, fast.Dropped())
	assert.Equal(t, uint64(1), bus.Dropped())

	got := <-slow.C
	assert.Equal(t, "a", got.ID, "the queued detection survives the drop")
	got = <-fast.C
	assert.Equal(t, "b", got.ID)
}

func TestBusPublishAfterCancelDoesNotPanic(t *testing.T) {
	bus := NewBus(2)
	sub := bus.Subscribe()
	sub.Cancel()
	sub.Cancel() // repeated cancel is safe

	assert.Zero(t, bus.SubscriberCount())
	bus.Publish(testDetection("a"))

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done channel should be closed after Cancel")
	}
}

func TestBusDefaultBufferSize(t *testing.T) {
	bus := NewBus(0)
	sub := bus.Subscribe()
	defer sub.Cancel()
	assert.Equal(t, DefaultSubscriberBuffer, cap(sub.ch))
}

func TestLiveEventTimestampEndsInZ(t *testing.T) {
	detection := testDetection("a")
	lat := 60.17
	detection.Latitude = &lat

	event := NewLiveEvent(detection)
	assert.True(t, strings.HasSuffix(event.Timestamp, "Z"), "timestamp %q must end in Z", event.Timestamp)
	assert.Equal(t, "2025-04-12T05:30:00Z", event.Timestamp)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"latitude":60.17`)
	assert.Contains(t, string(data), `"longitude":null`)
}

func TestLiveEventNonUTCInputNormalized(t *testing.T) {
	detection := testDetection("a")
	helsinki := time.FixedZone("EET", 2*60*60)
	detection.Timestamp = time.Date(2025, 4, 12, 7, 30, 0, 0, helsinki)

	event := NewLiveEvent(detection)
	assert.Equal(t, "2025-04-12T05:30:00Z", event.Timestamp)
}
