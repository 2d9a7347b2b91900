package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	service := NewService(&ServiceConfig{
		MaxNotifications:   10,
		CleanupInterval:    time.Hour,
		RateLimitWindow:    time.Minute,
		RateLimitMaxEvents: 100,
	})
	t.Cleanup(service.Stop)
	return service
}

func TestServiceCreateAndGet(t *testing.T) {
	service := newTestService(t)

	created, err := service.Create(TypeInfo, PriorityLow, "hello", "world")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	fetched, err := service.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", fetched.Title)
	assert.Equal(t, StatusUnread, fetched.Status)

	_, err = service.Get("no-such-id")
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestServiceMarkAsReadAndUnreadCount(t *testing.T) {
	service := newTestService(t)

	first, err := service.Create(TypeInfo, PriorityLow, "a", "")
	require.NoError(t, err)
	_, err = service.Create(TypeInfo, PriorityLow, "b", "")
	require.NoError(t, err)

	count, err := service.GetUnreadCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, service.MarkAsRead(first.ID))
	count, err = service.GetUnreadCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServiceSubscribeReceivesBroadcast(t *testing.T) {
	service := newTestService(t)

	ch, ctx := service.Subscribe()
	defer service.Unsubscribe(ch)

	_, err := service.Create(TypeDetection, PriorityMedium, "bird", "seen")
	require.NoError(t, err)

	select {
	case received := <-ch:
		assert.Equal(t, "bird", received.Title)
	case <-ctx.Done():
		t.Fatal("subscription cancelled before delivery")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestServiceRateLimit(t *testing.T) {
	service := NewService(&ServiceConfig{
		MaxNotifications:   10,
		CleanupInterval:    time.Hour,
		RateLimitWindow:    time.Minute,
		RateLimitMaxEvents: 2,
	})
	defer service.Stop()

	_, err := service.Create(TypeInfo, PriorityLow, "1", "")
	require.NoError(t, err)
	_, err = service.Create(TypeInfo, PriorityLow, "2", "")
	require.NoError(t, err)
	_, err = service.Create(TypeInfo, PriorityLow, "3", "")
	assert.Error(t, err)
}

func TestStoreEvictsOldestWhenFull(t *testing.T) {
	store := NewInMemoryStore(2)

	oldest := NewNotification(TypeInfo, PriorityLow, "oldest", "")
	oldest.Timestamp = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(oldest))
	require.NoError(t, store.Save(NewNotification(TypeInfo, PriorityLow, "mid", "")))
	require.NoError(t, store.Save(NewNotification(TypeInfo, PriorityLow, "new", "")))

	_, err := store.Get(oldest.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)

	count, err := store.GetUnreadCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStoreListFilters(t *testing.T) {
	store := NewInMemoryStore(10)

	detection := NewNotification(TypeDetection, PriorityMedium, "d", "")
	errNotif := NewNotification(TypeError, PriorityCritical, "e", "").WithComponent("weather")
	require.NoError(t, store.Save(detection))
	require.NoError(t, store.Save(errNotif))

	results, err := store.List(&FilterOptions{Types: []Type{TypeDetection}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].Title)

	results, err = store.List(&FilterOptions{Component: "weather"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e", results[0].Title)
}

func TestNotificationCloneIsolation(t *testing.T) {
	original := NewNotification(TypeInfo, PriorityLow, "t", "m").WithMetadata("key", "value")
	clone := original.Clone()
	clone.Metadata["key"] = "changed"
	assert.Equal(t, "value", original.Metadata["key"])
}

// fakeEngine serves canned taxonomy and first-detection answers.
type fakeEngine struct {
	taxa      datastore.DetectionEnvelope
	firstEver bool
}

func (f *fakeEngine) Query(_ context.Context, _ datastore.QueryFilters) ([]datastore.DetectionEnvelope, error) {
	return []datastore.DetectionEnvelope{f.taxa}, nil
}

func (f *fakeEngine) IsFirstEver(string, time.Time) (bool, error) {
	return f.firstEver, nil
}

func (f *fakeEngine) IsFirstInPeriod(string, time.Time, time.Time) (bool, error) {
	return false, nil
}

func TestDetectionConsumerPublishesMatches(t *testing.T) {
	service := newTestService(t)

	settings := &conf.Settings{}
	settings.Notification.Enabled = true
	settings.Notification.Rules = []conf.NotificationRule{
		{Name: "new species", Enabled: true, Scope: "new_ever"},
	}

	consumer := NewDetectionConsumer(settings, &fakeEngine{firstEver: true}, service)
	consumer.DetectionSaved(context.Background(), &datastore.Detection{
		ID:             "det-9",
		ScientificName: "Corvus corax",
		CommonName:     "Common Raven",
		Confidence:     0.95,
		Timestamp:      time.Now(),
	})

	results, err := service.List(&FilterOptions{Types: []Type{TypeDetection}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new species", results[0].Title)
	assert.Equal(t, "Corvus corax", results[0].Metadata["scientific_name"])
}

func TestDetectionConsumerSkipsWhenNotFirst(t *testing.T) {
	service := newTestService(t)

	settings := &conf.Settings{}
	settings.Notification.Enabled = true
	settings.Notification.Rules = []conf.NotificationRule{
		{Name: "new species", Enabled: true, Scope: "new_ever"},
	}

	consumer := NewDetectionConsumer(settings, &fakeEngine{firstEver: false}, service)
	consumer.DetectionSaved(context.Background(), &datastore.Detection{
		ID:             "det-10",
		ScientificName: "Corvus corax",
		CommonName:     "Common Raven",
		Confidence:     0.95,
		Timestamp:      time.Now(),
	})

	results, err := service.List(nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
