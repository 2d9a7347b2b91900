// Package sources provides backup sources for the backup manager.
package sources

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// SQLiteSource snapshots the detection database with VACUUM INTO, which
// produces a consistent copy while the store stays open for writers.
type SQLiteSource struct {
	store datastore.Interface
}

// NewSQLiteSource creates a source over an open SQLite store.
func NewSQLiteSource(store datastore.Interface) *SQLiteSource {
	return &SQLiteSource{store: store}
}

func (s *SQLiteSource) Name() string {
	return "birds"
}

// Backup writes a snapshot into a temp file and returns its path. The
// cleanup function removes the snapshot.
func (s *SQLiteSource) Backup(ctx context.Context) (string, func(), error) {
	if s.store.Dialect() != "sqlite" {
		return "", nil, errors.Newf("sqlite source requires a sqlite store, got %s", s.store.Dialect()).
			Component("backup").
			Category(errors.CategoryValidation).
			Build()
	}

	dir, err := os.MkdirTemp("", "backup-*")
	if err != nil {
		return "", nil, errors.New(err).
			Component("backup").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_dir").
			Build()
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	snapshot := filepath.Join(dir, "snapshot.db")

	conn, err := s.store.Conn(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		cleanup()
		return "", nil, errors.New(err).
			Component("backup").
			Category(errors.CategoryDatabase).
			Context("operation", "vacuum_into").
			Build()
	}
	return snapshot, cleanup, nil
}
