// Package notification evaluates detection notification rules and
// manages the in-app notification center. Delivery transports are out
// of scope; matched rules produce in-app notifications only.
package notification

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// Type categorizes a notification.
type Type string

const (
	TypeError     Type = "error"
	TypeWarning   Type = "warning"
	TypeInfo      Type = "info"
	TypeDetection Type = "detection"
	TypeSystem    Type = "system"
)

// Priority is the urgency level of a notification.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Status is the read state of a notification.
type Status string

const (
	StatusUnread       Status = "unread"
	StatusRead         Status = "read"
	StatusAcknowledged Status = "acknowledged"
)

// ErrNotificationNotFound is returned for lookups of unknown ids.
var ErrNotificationNotFound = errors.Newf("notification not found").
	Component("notification").
	Category(errors.CategoryNotFound).
	Build()

// Notification is one entry of the notification center.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Status    Status         `json:"status"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// NewNotification creates a notification with a fresh id and timestamp.
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Status:    StatusUnread,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// WithComponent sets the component field and returns the notification
// for chaining.
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithMetadata adds metadata and returns the notification for chaining.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// WithExpiry sets the expiration time and returns the notification for
// chaining.
func (n *Notification) WithExpiry(duration time.Duration) *Notification {
	expiresAt := time.Now().Add(duration)
	n.ExpiresAt = &expiresAt
	return n
}

// IsExpired reports whether the notification has expired.
func (n *Notification) IsExpired() bool {
	return n.ExpiresAt != nil && time.Now().After(*n.ExpiresAt)
}

// Clone copies the notification, including the metadata map, so
// broadcast receivers never share mutable state with the store.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	clone := *n
	if n.ExpiresAt != nil {
		expiresAt := *n.ExpiresAt
		clone.ExpiresAt = &expiresAt
	}
	if n.Metadata != nil {
		clone.Metadata = make(map[string]any, len(n.Metadata))
		for key, value := range n.Metadata {
			clone.Metadata[key] = value
		}
	}
	return &clone
}

// FilterOptions narrows a notification listing.
type FilterOptions struct {
	Types      []Type
	Priorities []Priority
	Status     []Status
	Component  string
	Since      *time.Time
	Limit      int
	Offset     int
}

// InMemoryStore is a bounded, thread-safe notification store. When full
// the oldest notification is dropped.
type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	maxSize       int
	unreadCount   int
}

// NewInMemoryStore creates a store holding at most maxSize entries.
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxNotifications
	}
	return &InMemoryStore{
		notifications: make(map[string]*Notification),
		maxSize:       maxSize,
	}
}

// Save stores a notification, evicting the oldest entry when full.
func (s *InMemoryStore) Save(notification *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.notifications) >= s.maxSize {
		s.removeOldest()
	}
	s.notifications[notification.ID] = notification
	if notification.Status == StatusUnread {
		s.unreadCount++
	}
	return nil
}

// Get retrieves a copy of a notification by id.
func (s *InMemoryStore) Get(id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if notif, exists := s.notifications[id]; exists {
		return notif.Clone(), nil
	}
	return nil, ErrNotificationNotFound
}

// List returns filtered notifications, newest first.
func (s *InMemoryStore) List(filter *FilterOptions) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*Notification, 0, len(s.notifications))
	for _, notif := range s.notifications {
		if matchesFilter(notif, filter) {
			results = append(results, notif.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if filter != nil {
		if filter.Offset >= len(results) {
			results = []*Notification{}
		} else {
			results = results[filter.Offset:]
		}
		if filter.Limit > 0 && len(results) > filter.Limit {
			results = results[:filter.Limit]
		}
	}
	return results, nil
}

// Update replaces an existing notification.
func (s *InMemoryStore) Update(notification *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.notifications[notification.ID]
	if !exists {
		return ErrNotificationNotFound
	}
	if previous.Status == StatusUnread && notification.Status != StatusUnread {
		s.unreadCount--
	} else if previous.Status != StatusUnread && notification.Status == StatusUnread {
		s.unreadCount++
	}
	s.notifications[notification.ID] = notification
	return nil
}

// Delete removes a notification.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notif, exists := s.notifications[id]; exists && notif.Status == StatusUnread {
		s.unreadCount--
	}
	delete(s.notifications, id)
	return nil
}

// DeleteExpired drops all expired notifications.
func (s *InMemoryStore) DeleteExpired() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, notif := range s.notifications {
		if notif.IsExpired() {
			if notif.Status == StatusUnread {
				s.unreadCount--
			}
			delete(s.notifications, id)
		}
	}
	return nil
}

// GetUnreadCount returns the number of unread notifications.
func (s *InMemoryStore) GetUnreadCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadCount, nil
}

func (s *InMemoryStore) removeOldest() {
	var oldestID string
	var oldestTime time.Time
	for id, notif := range s.notifications {
		if oldestID == "" || notif.Timestamp.Before(oldestTime) {
			oldestID = id
			oldestTime = notif.Timestamp
		}
	}
	if oldestID != "" {
		if notif := s.notifications[oldestID]; notif.Status == StatusUnread {
			s.unreadCount--
		}
		delete(s.notifications, oldestID)
	}
}

func matchesFilter(notif *Notification, filter *FilterOptions) bool {
	if filter == nil {
		return true
	}
	if len(filter.Types) > 0 && !slices.Contains(filter.Types, notif.Type) {
		return false
	}
	if len(filter.Priorities) > 0 && !slices.Contains(filter.Priorities, notif.Priority) {
		return false
	}
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, notif.Status) {
		return false
	}
	if filter.Component != "" && notif.Component != filter.Component {
		return false
	}
	if filter.Since != nil && notif.Timestamp.Before(*filter.Since) {
		return false
	}
	return true
}
