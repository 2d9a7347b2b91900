package datastore

import (
	"fmt"
	"path/filepath"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements the store Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.DatabasePath() == "" {
		return validationError("open", "sqlite database path must not be empty")
	}
	return nil
}

// Open sets up the SQLite database connection. WAL mode lets the
// analyzer keep inserting while query handlers read, and the busy
// timeout covers the brief write lock during checkpoints.
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	dir, fileName := filepath.Split(store.Settings.DatabasePath())
	basePath := conf.GetBasePath(dir)
	absoluteFilePath := filepath.Join(basePath, fileName)

	dsn := absoluteFilePath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	// Create a new GORM logger
	newLogger := createGormLogger()

	// Open the SQLite database
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newLogger})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", absoluteFilePath)
}

// Close flushes and closes the underlying SQLite connection pool.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}

	if store.Settings.Debug {
		getLogger().Debug("SQLite database connection closed")
	}
	return nil
}
