package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

type recordingConsumer struct {
	mu     sync.Mutex
	name   string
	events []ErrorEvent
	done   chan struct{}
	want   int
}

func newRecordingConsumer(name string, want int) *recordingConsumer {
	return &recordingConsumer{name: name, done: make(chan struct{}), want: want}
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) ProcessEvent(event ErrorEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	if len(c.events) == c.want {
		close(c.done)
	}
	return nil
}

func (c *recordingConsumer) received() []ErrorEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ErrorEvent, len(c.events))
	copy(out, c.events)
	return out
}

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	logging.Init()
	ResetForTesting()
	bus, err := Initialize(&Config{BufferSize: 16, Workers: 1, Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, bus)
	t.Cleanup(func() {
		_ = bus.Shutdown(time.Second)
		ResetForTesting()
	})
	return bus
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishReachesConsumer(t *testing.T) {
	bus := newTestBus(t)
	consumer := newRecordingConsumer("recorder", 1)
	require.NoError(t, bus.RegisterConsumer(consumer))

	ee := errors.Newf("db timeout").Component("datastore").Category(errors.CategoryDatabase).Build()
	require.True(t, bus.TryPublish(ee))

	select {
	case <-consumer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not receive event")
	}

	got := consumer.received()
	require.Len(t, got, 1)
	assert.Equal(t, "datastore", got[0].GetComponent())
}

func TestTryPublishWithoutConsumersReturnsFalse(t *testing.T) {
	bus := newTestBus(t)
	ee := errors.Newf("nobody listening").Build()
	assert.False(t, bus.TryPublish(ee))
}

func TestDuplicateEventsSuppressed(t *testing.T) {
	bus := newTestBus(t)
	consumer := newRecordingConsumer("recorder", 1)
	require.NoError(t, bus.RegisterConsumer(consumer))

	first := errors.Newf("same failure").Component("mqtt").Category(errors.CategoryMQTT).Build()
	second := errors.Newf("same failure").Component("mqtt").Category(errors.CategoryMQTT).Build()

	assert.True(t, bus.TryPublish(first))
	assert.False(t, bus.TryPublish(second))

	stats := bus.GetStats()
	assert.Equal(t, uint64(1), stats.EventsReceived)
	assert.Equal(t, uint64(1), stats.EventsSuppressed)
}

func TestDuplicateConsumerRejected(t *testing.T) {
	bus := newTestBus(t)
	require.NoError(t, bus.RegisterConsumer(newRecordingConsumer("dup", 1)))
	assert.Error(t, bus.RegisterConsumer(newRecordingConsumer("dup", 1)))
}
