// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines
// the operations available on the detection store.
type Interface interface {
	Open() error
	Close() error
	Save(detection *Detection, audioFile *AudioFile) error
	Get(id string) (Detection, error)
	Delete(id string) error
	UpdateLocation(id string, latitude, longitude float64) error
	GetClipPath(id string) (string, error)
	GetLastDetections(numDetections int) ([]Detection, error)
	SearchDetections(query string, sortAscending bool, limit, offset int) ([]Detection, error)
	GetAllDetectedSpecies() ([]string, error)
	// aggregates
	DetectionCount(start, end time.Time) (int64, error)
	UniqueSpeciesCount(start, end time.Time) (int64, error)
	SpeciesCounts(start, end time.Time) ([]SpeciesCount, error)
	HourlyCounts(date string) ([24]int, error)
	CountByDate(species string) (map[string]int, error)
	GetStorageMetrics() (StorageMetrics, error)
	DetectionsInRange(start, end time.Time) ([]Detection, error)
	Snapshot(start, end time.Time) (AggregateSnapshot, error)
	CountSpeciesDetections(scientificName string, start, end time.Time) (int64, error)
	FirstDetectionSince(scientificName string, since time.Time) (time.Time, error)
	HourlyWeatherSeries(start, end time.Time) ([]HourlyWeatherPoint, error)
	// weather data
	SaveHourlyWeather(weather *HourlyWeather) error
	GetHourlyWeather(hourEpoch int64) (*HourlyWeather, error)
	LatestHourlyWeather() (*HourlyWeather, error)
	// raw connection access for sessions that attach reference databases
	Conn(ctx context.Context) (*sql.Conn, error)
	Dialect() string
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// Save stores a detection and its optional audio file as a single
// transaction in the database. When the audio file insert succeeds but
// the detection insert fails the whole transaction is rolled back, so no
// orphan audio file row remains.
func (ds *DataStore) Save(detection *Detection, audioFile *AudioFile) error {
	if detection.SpeciesTensor == "" {
		return validationError("save", "species tensor must not be empty")
	}

	tx := ds.DB.Begin()
	if tx.Error != nil {
		return fmt.Errorf("starting transaction: %w", tx.Error)
	}

	// Roll back the transaction if a panic occurs
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if audioFile != nil {
		if err := tx.Create(audioFile).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("saving audio file: %w", err)
		}
		detection.AudioFileID = &audioFile.ID
	}

	if err := tx.Create(detection).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("saving detection: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get retrieves a detection by its ID from the database.
func (ds *DataStore) Get(id string) (Detection, error) {
	var detection Detection
	if err := ds.DB.Preload("AudioFile").Where("id = ?", id).First(&detection).Error; err != nil {
		return Detection{}, fmt.Errorf("getting detection %s: %w", id, err)
	}
	return detection, nil
}

// Delete removes a detection and its associated audio file row from the
// database. The clip on disk is the caller's responsibility.
func (ds *DataStore) Delete(id string) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var detection Detection
		if err := tx.Where("id = ?", id).First(&detection).Error; err != nil {
			return fmt.Errorf("finding detection %s: %w", id, err)
		}

		if err := tx.Delete(&Detection{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("deleting detection %s: %w", id, err)
		}

		if detection.AudioFileID != nil {
			if err := tx.Delete(&AudioFile{}, *detection.AudioFileID).Error; err != nil {
				return fmt.Errorf("deleting audio file for detection %s: %w", id, err)
			}
		}
		return nil
	})
}

// UpdateLocation sets the latitude and longitude of an existing
// detection. Coordinates are the only mutable detection attributes.
func (ds *DataStore) UpdateLocation(id string, latitude, longitude float64) error {
	result := ds.DB.Model(&Detection{}).Where("id = ?", id).
		Updates(map[string]any{"latitude": latitude, "longitude": longitude})
	if result.Error != nil {
		return fmt.Errorf("updating location for detection %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("updating location for detection %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// GetClipPath retrieves the relative path of the audio clip associated
// with a detection.
func (ds *DataStore) GetClipPath(id string) (string, error) {
	var clip struct {
		Path string
	}

	err := ds.DB.Model(&AudioFile{}).
		Select("audio_files.path").
		Joins("JOIN detections ON detections.audio_file_id = audio_files.id").
		Where("detections.id = ?", id).
		First(&clip).Error
	if err != nil {
		return "", fmt.Errorf("retrieving clip path for detection %s: %w", id, err)
	}

	return clip.Path, nil
}

// GetLastDetections retrieves the most recent detections.
func (ds *DataStore) GetLastDetections(numDetections int) ([]Detection, error) {
	var detections []Detection
	if result := ds.DB.Order("timestamp DESC").Limit(numDetections).Find(&detections); result.Error != nil {
		return nil, fmt.Errorf("getting last detections: %w", result.Error)
	}
	return detections, nil
}

// SearchDetections performs a substring search on common and scientific
// names with optional sorting and pagination.
func (ds *DataStore) SearchDetections(query string, sortAscending bool, limit, offset int) ([]Detection, error) {
	var detections []Detection
	sortOrder := sortAscendingString(sortAscending)

	err := ds.DB.Where("common_name LIKE ? OR scientific_name LIKE ?", "%"+query+"%", "%"+query+"%").
		Order("timestamp " + sortOrder).
		Limit(limit).
		Offset(offset).
		Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("searching detections: %w", err)
	}
	return detections, nil
}

// GetAllDetectedSpecies returns the distinct scientific names present in
// the detections table.
func (ds *DataStore) GetAllDetectedSpecies() ([]string, error) {
	var names []string
	err := ds.DB.Model(&Detection{}).
		Distinct("scientific_name").
		Order("scientific_name").
		Pluck("scientific_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("getting detected species: %w", err)
	}
	return names, nil
}

// SaveHourlyWeather inserts or updates the weather observation for its
// hour epoch. Providers re-poll within the hour, so the row is replaced
// rather than duplicated.
func (ds *DataStore) SaveHourlyWeather(weather *HourlyWeather) error {
	var existing HourlyWeather
	err := ds.DB.Where("hour_epoch = ?", weather.HourEpoch).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			if err := ds.DB.Create(weather).Error; err != nil {
				return fmt.Errorf("saving hourly weather: %w", err)
			}
			return nil
		}
		return fmt.Errorf("checking existing hourly weather: %w", err)
	}

	weather.ID = existing.ID
	if err := ds.DB.Save(weather).Error; err != nil {
		return fmt.Errorf("updating hourly weather: %w", err)
	}
	return nil
}

// GetHourlyWeather retrieves the weather observation for an hour epoch.
func (ds *DataStore) GetHourlyWeather(hourEpoch int64) (*HourlyWeather, error) {
	var weather HourlyWeather
	if err := ds.DB.Where("hour_epoch = ?", hourEpoch).First(&weather).Error; err != nil {
		return nil, err
	}
	return &weather, nil
}

// LatestHourlyWeather retrieves the most recent weather observation.
func (ds *DataStore) LatestHourlyWeather() (*HourlyWeather, error) {
	var weather HourlyWeather
	if err := ds.DB.Order("hour_epoch DESC").First(&weather).Error; err != nil {
		return nil, err
	}
	return &weather, nil
}

// Conn returns a dedicated connection from the underlying pool. Callers
// that attach reference databases must run every statement on this
// connection, because SQLite ATTACH is connection scoped, and must close
// it when done.
func (ds *DataStore) Conn(ctx context.Context) (*sql.Conn, error) {
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieving generic DB object: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return conn, nil
}

// Dialect returns the name of the underlying database dialect.
func (ds *DataStore) Dialect() string {
	return ds.DB.Dialector.Name()
}

// GetHourFormat returns the database specific SQL fragment for
// extracting the hour from the timestamp column.
func (ds *DataStore) GetHourFormat() string {
	switch ds.DB.Dialector.Name() {
	case "sqlite":
		return "strftime('%H', timestamp)"
	case "mysql":
		return "DATE_FORMAT(timestamp, '%H')"
	default:
		return ""
	}
}

// GetDateFormat returns the database specific SQL fragment for
// extracting the date from the timestamp column.
func (ds *DataStore) GetDateFormat() string {
	switch ds.DB.Dialector.Name() {
	case "sqlite":
		return "strftime('%Y-%m-%d', timestamp)"
	case "mysql":
		return "DATE_FORMAT(timestamp, '%Y-%m-%d')"
	default:
		return ""
	}
}

// sortAscendingString returns "ASC" or "DESC" based on the boolean input.
func sortAscendingString(asc bool) string {
	if asc {
		return "ASC"
	}
	return "DESC"
}

// isTransientError reports whether a database error is worth retrying,
// such as a locked database or a brief disk or timeout condition.
// Constraint violations and schema errors are permanent and must not be
// retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if isConstraintViolation(err) {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "busy") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "no space") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// isConstraintViolation reports whether an error came from a schema
// constraint such as a duplicate key or failed foreign key check.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "constraint") ||
		strings.Contains(errStr, "duplicate") ||
		strings.Contains(errStr, "unique")
}

// IsTransientError is the exported form used by the ingest service to
// decide between buffering a failed detection and dropping it.
func IsTransientError(err error) bool {
	return isTransientError(err)
}
