package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. One second accommodates migration batch queries while
// still flagging queries that need an index.
const DefaultSlowQueryThreshold = 1 * time.Second

// getLogger returns the datastore service logger, falling back to the
// default logger before logging.Init has run.
func getLogger() *slog.Logger {
	if l := logging.ForService("datastore"); l != nil {
		return l
	}
	return slog.Default()
}

// GormLogger adapts the structured logger to GORM's logger interface and
// flags slow queries.
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return &GormLogger{
		SlowThreshold: DefaultSlowQueryThreshold,
		LogLevel:      gormlogger.Warn,
	}
}

// LogMode implements gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info implements gormlogger.Interface.
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Info {
		getLogger().InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Warn implements gormlogger.Interface.
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Warn {
		getLogger().WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Error implements gormlogger.Interface.
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= gormlogger.Error {
		getLogger().ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace implements gormlogger.Interface. Errors are logged except for
// record-not-found, which is an expected outcome for lookups.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && err != gorm.ErrRecordNotFound:
		sql, rows := fc()
		getLogger().ErrorContext(ctx, "Database query failed",
			"error", err,
			"sql", sql,
			"rows", rows,
			"duration_ms", elapsed.Milliseconds())
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		sql, rows := fc()
		getLogger().WarnContext(ctx, "Slow database query",
			"sql", sql,
			"rows", rows,
			"duration_ms", elapsed.Milliseconds(),
			"threshold_ms", l.SlowThreshold.Milliseconds())
	case l.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		getLogger().DebugContext(ctx, "Database query",
			"sql", sql,
			"rows", rows,
			"duration_ms", elapsed.Milliseconds())
	}
}

// performAutoMigration automates database migrations with error handling.
// The index set on the models covers the query paths used by the
// aggregate and enriched queries.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()

	if err := db.AutoMigrate(&Detection{}, &AudioFile{}, &HourlyWeather{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		getLogger().Debug("Database migration completed",
			"db_type", dbType,
			"connection", connectionInfo,
			"duration", time.Since(migrationStart))
	}

	return nil
}
