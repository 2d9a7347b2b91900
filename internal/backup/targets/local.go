// Package targets provides storage targets for the backup manager.
package targets

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

func getLogger() *slog.Logger {
	if logger := logging.ForService("backup"); logger != nil {
		return logger
	}
	return slog.Default()
}

// LocalTarget keeps backup copies in a local directory, pruning old
// ones beyond the configured count.
type LocalTarget struct {
	dir  string
	keep int
}

// NewLocalTarget creates a local target from the settings.
func NewLocalTarget(settings *conf.Settings) *LocalTarget {
	keep := settings.Backup.Local.Keep
	if keep <= 0 {
		keep = 7
	}
	return &LocalTarget{dir: settings.BackupLocalPath(), keep: keep}
}

func (t *LocalTarget) Name() string {
	return "local"
}

// Store copies the artifact into the backup directory and prunes old
// backups past the keep count.
func (t *LocalTarget) Store(ctx context.Context, localPath, fileName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fileIOError(err, t.dir)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fileIOError(err, localPath)
	}
	defer src.Close()

	destPath := filepath.Join(t.dir, fileName)
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fileIOError(err, destPath)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		_ = os.Remove(destPath)
		return fileIOError(err, destPath)
	}
	if err := dest.Close(); err != nil {
		return fileIOError(err, destPath)
	}

	return t.prune()
}

// prune removes the oldest backups beyond the keep count.
func (t *LocalTarget) prune() error {
	entries, err := filepath.Glob(filepath.Join(t.dir, "*.db"))
	if err != nil {
		return fileIOError(err, t.dir)
	}
	if len(entries) <= t.keep {
		return nil
	}

	// Backup names embed a UTC timestamp, lexical order is age order.
	sort.Strings(entries)
	logger := getLogger()
	for _, stale := range entries[:len(entries)-t.keep] {
		if err := os.Remove(stale); err != nil {
			return fileIOError(err, stale)
		}
		logger.Debug("Pruned old backup", "path", stale)
	}
	return nil
}

func fileIOError(err error, path string) error {
	return errors.New(err).
		Component("backup").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
