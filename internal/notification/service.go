package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// Defaults for the notification center.
const (
	DefaultMaxNotifications   = 1000
	DefaultCleanupInterval    = 5 * time.Minute
	DefaultRateLimitWindow    = time.Minute
	DefaultRateLimitMaxEvents = 60
	DefaultChannelBufferSize  = 16
)

func getLogger() *slog.Logger {
	if logger := logging.ForService("notification"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Subscriber is one live feed of notifications.
type Subscriber struct {
	ch     chan *Notification
	ctx    context.Context
	cancel context.CancelFunc
}

// ServiceConfig configures the notification service.
type ServiceConfig struct {
	Debug              bool
	MaxNotifications   int
	CleanupInterval    time.Duration
	RateLimitWindow    time.Duration
	RateLimitMaxEvents int
}

// DefaultServiceConfig returns the default configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxNotifications:   DefaultMaxNotifications,
		CleanupInterval:    DefaultCleanupInterval,
		RateLimitWindow:    DefaultRateLimitWindow,
		RateLimitMaxEvents: DefaultRateLimitMaxEvents,
	}
}

// Service stores notifications and broadcasts them to subscribers. A
// sliding-window rate limiter caps creation so a failing component
// cannot flood the center.
type Service struct {
	store         *InMemoryStore
	subscribers   []*Subscriber
	subscribersMu sync.Mutex
	rateLimiter   *RateLimiter
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        *slog.Logger
	config        *ServiceConfig
}

// NewService creates the notification service and starts its cleanup
// worker.
func NewService(config *ServiceConfig) *Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	service := &Service{
		store:       NewInMemoryStore(config.MaxNotifications),
		rateLimiter: NewRateLimiter(config.RateLimitWindow, config.RateLimitMaxEvents),
		ctx:         ctx,
		cancel:      cancel,
		logger:      getLogger(),
		config:      config,
	}

	service.wg.Add(1)
	go service.cleanupLoop()

	service.logger.Info("Notification service started",
		"max_notifications", config.MaxNotifications,
		"cleanup_interval", config.CleanupInterval)
	return service
}

// Create adds a notification and broadcasts it to subscribers.
func (s *Service) Create(notifType Type, priority Priority, title, message string) (*Notification, error) {
	return s.CreateWithComponent(notifType, priority, title, message, "")
}

// CreateWithComponent adds a notification attributed to a component.
func (s *Service) CreateWithComponent(notifType Type, priority Priority, title, message, component string) (*Notification, error) {
	if !s.rateLimiter.Allow() {
		return nil, errors.Newf("notification rate limit exceeded").
			Component("notification").
			Category(errors.CategorySystem).
			Build()
	}

	notification := NewNotification(notifType, priority, title, message)
	if component != "" {
		notification.WithComponent(component)
	}

	if err := s.store.Save(notification); err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategorySystem).
			Context("operation", "save_notification").
			Build()
	}

	s.broadcast(notification)
	return notification, nil
}

// Publish stores and broadcasts an already assembled notification, used
// by the detection consumer which sets metadata before saving.
func (s *Service) Publish(notification *Notification) error {
	if !s.rateLimiter.Allow() {
		return errors.Newf("notification rate limit exceeded").
			Component("notification").
			Category(errors.CategorySystem).
			Build()
	}
	if err := s.store.Save(notification); err != nil {
		return err
	}
	s.broadcast(notification)
	return nil
}

// Get retrieves a notification by id.
func (s *Service) Get(id string) (*Notification, error) {
	return s.store.Get(id)
}

// List returns notifications matching the filter, newest first.
func (s *Service) List(filter *FilterOptions) ([]*Notification, error) {
	return s.store.List(filter)
}

// MarkAsRead flips a notification to read.
func (s *Service) MarkAsRead(id string) error {
	notification, err := s.store.Get(id)
	if err != nil {
		return err
	}
	notification.Status = StatusRead
	return s.store.Update(notification)
}

// Delete removes a notification.
func (s *Service) Delete(id string) error {
	return s.store.Delete(id)
}

// GetUnreadCount returns the number of unread notifications.
func (s *Service) GetUnreadCount() (int, error) {
	return s.store.GetUnreadCount()
}

// Subscribe returns a live notification feed and a context that is
// cancelled when the subscription ends. The service never closes the
// channel; receivers select on the context.
func (s *Service) Subscribe() (<-chan *Notification, context.Context) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	sub := &Subscriber{
		ch:     make(chan *Notification, DefaultChannelBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch, ctx
}

// Unsubscribe removes a subscription created by Subscribe.
func (s *Service) Unsubscribe(ch <-chan *Notification) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	for i, subscriber := range s.subscribers {
		if subscriber.ch == ch {
			subscriber.cancel()
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

// CreateErrorNotification maps an error onto a notification, using the
// enhanced error's component and category when available.
func (s *Service) CreateErrorNotification(err error) (*Notification, error) {
	title := "Application Error"
	priority := PriorityMedium
	component := "unknown"
	message := err.Error()

	var enhancedErr *errors.EnhancedError
	if errors.As(err, &enhancedErr) {
		component = enhancedErr.GetComponent()
		switch errors.ErrorCategory(enhancedErr.GetCategory()) {
		case errors.CategorySystem, errors.CategoryDatabase:
			priority = PriorityCritical
			title = "Critical System Error"
		case errors.CategoryNetwork:
			priority = PriorityHigh
			title = "Network Error"
		default:
			priority = PriorityMedium
		}
	}

	return s.CreateWithComponent(TypeError, priority, title, message, component)
}

// Stop terminates the cleanup worker and cancels all subscriptions.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// broadcast clones the notification into every live subscriber channel.
// Full channels are skipped so the publisher never blocks.
func (s *Service) broadcast(notification *Notification) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	active := s.subscribers[:0]
	for _, sub := range s.subscribers {
		select {
		case <-sub.ctx.Done():
			continue
		default:
		}
		active = append(active, sub)

		select {
		case sub.ch <- notification.Clone():
		default:
			s.logger.Debug("Notification channel full, skipping subscriber")
		}
	}
	s.subscribers = active
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	interval := s.config.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.store.DeleteExpired(); err != nil {
				s.logger.Warn("Failed to delete expired notifications", "error", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}
