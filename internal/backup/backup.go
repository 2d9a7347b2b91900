// Package backup creates database backups and delivers them to the
// configured targets.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// Source produces one backup artifact on local disk. The cleanup
// function removes the artifact once all targets have consumed it.
type Source interface {
	Name() string
	Backup(ctx context.Context) (path string, cleanup func(), err error)
}

// Target stores a backup artifact somewhere durable.
type Target interface {
	Name() string
	Store(ctx context.Context, localPath, fileName string) error
}

// Result describes one completed backup run.
type Result struct {
	FileName  string
	StartedAt time.Time
	Duration  time.Duration
	Targets   []string
}

func getLogger() *slog.Logger {
	if logger := logging.ForService("backup"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Manager runs a source against a set of targets.
type Manager struct {
	source  Source
	targets []Target
	logger  *slog.Logger
}

// NewManager creates a backup manager. At least one target must be
// given.
func NewManager(source Source, targets ...Target) (*Manager, error) {
	if source == nil {
		return nil, errors.Newf("backup source is required").
			Component("backup").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(targets) == 0 {
		return nil, errors.Newf("at least one backup target is required").
			Component("backup").
			Category(errors.CategoryValidation).
			Build()
	}
	return &Manager{source: source, targets: targets, logger: getLogger()}, nil
}

// Run produces one backup and uploads it to every target concurrently.
// A failing target fails the run but does not stop the other uploads.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	fileName := fmt.Sprintf("%s-%s.db", m.source.Name(), started.UTC().Format("20060102-150405"))

	m.logger.Info("Starting backup run", "source", m.source.Name(), "file", fileName)

	path, cleanup, err := m.source.Backup(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, target := range m.targets {
		group.Go(func() error {
			if err := target.Store(groupCtx, path, fileName); err != nil {
				m.logger.Error("Backup target failed",
					"target", target.Name(), "file", fileName, "error", err)
				return err
			}
			m.logger.Info("Backup stored", "target", target.Name(), "file", fileName)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		FileName:  fileName,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	for _, target := range m.targets {
		result.Targets = append(result.Targets, target.Name())
	}

	m.logger.Info("Backup run complete",
		"file", fileName,
		"targets", len(result.Targets),
		"duration", result.Duration)
	return result, nil
}
