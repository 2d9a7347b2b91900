package backup

import (
	"context"
	"sync"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// Scheduler runs the backup manager once a day at the configured time.
type Scheduler struct {
	manager  *Manager
	schedule string
	location *time.Location
	quit     chan struct{}
	wg       sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// NewScheduler creates a daily scheduler. Returns nil when backups are
// disabled or no schedule is configured.
func NewScheduler(settings *conf.Settings, manager *Manager) *Scheduler {
	if !settings.Backup.Enabled || settings.Backup.Schedule == "" {
		return nil
	}
	return &Scheduler{
		manager:  manager,
		schedule: settings.Backup.Schedule,
		location: settings.Location(),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop terminates the scheduling loop. A backup in flight finishes.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	logger := getLogger()

	for {
		next, err := s.nextRun()
		if err != nil {
			logger.Error("Invalid backup schedule, scheduler stopped",
				"schedule", s.schedule, "error", err)
			return
		}
		logger.Info("Next backup scheduled", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			if _, err := s.manager.Run(context.Background()); err != nil {
				logger.Error("Scheduled backup failed", "error", err)
			}
		case <-s.quit:
			timer.Stop()
			return
		}
	}
}

// nextRun computes the next occurrence of the scheduled wall-clock time
// in the server timezone.
func (s *Scheduler) nextRun() (time.Time, error) {
	at, err := conf.ParseClockTime(s.schedule)
	if err != nil {
		return time.Time{}, err
	}

	now := s.now().In(s.location)
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), at.Second(), 0, s.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
