// aggregates.go: read-side tallies for the dashboard and analytics
package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DetectionCount returns the number of detections in [start, end).
func (ds *DataStore) DetectionCount(start, end time.Time) (int64, error) {
	var count int64
	err := rangeQuery(ds.DB.Model(&Detection{}), start, end).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting detections: %w", err)
	}
	return count, nil
}

// UniqueSpeciesCount returns the number of distinct scientific names
// detected in [start, end).
func (ds *DataStore) UniqueSpeciesCount(start, end time.Time) (int64, error) {
	var count int64
	err := rangeQuery(ds.DB.Model(&Detection{}), start, end).
		Distinct("scientific_name").Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting unique species: %w", err)
	}
	return count, nil
}

// SpeciesCounts returns the per-species detection tallies in [start,
// end), ordered by count descending.
func (ds *DataStore) SpeciesCounts(start, end time.Time) ([]SpeciesCount, error) {
	return speciesCounts(ds.DB, start, end)
}

func speciesCounts(db *gorm.DB, start, end time.Time) ([]SpeciesCount, error) {
	var counts []SpeciesCount
	err := rangeQuery(db.Model(&Detection{}), start, end).
		Select("scientific_name", "common_name", "COUNT(*) as count").
		Group("scientific_name").
		Order("count DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting species: %w", err)
	}
	return counts, nil
}

// HourlyCounts returns the detection count for each hour of the given
// date, formatted YYYY-MM-DD in UTC.
func (ds *DataStore) HourlyCounts(date string) ([24]int, error) {
	var hourlyCounts [24]int
	var results []struct {
		Hour  int
		Count int
	}

	hourFormat := ds.GetHourFormat()
	dateFormat := ds.GetDateFormat()
	if hourFormat == "" || dateFormat == "" {
		return hourlyCounts, fmt.Errorf("unsupported dialect %q for hourly counts", ds.DB.Dialector.Name())
	}

	err := ds.DB.Model(&Detection{}).
		Select(fmt.Sprintf("%s as hour, COUNT(*) as count", hourFormat)).
		Where(fmt.Sprintf("%s = ?", dateFormat), date).
		Group(hourFormat).
		Scan(&results).Error
	if err != nil {
		return hourlyCounts, fmt.Errorf("counting hourly detections: %w", err)
	}

	for _, result := range results {
		if result.Hour >= 0 && result.Hour < 24 {
			hourlyCounts[result.Hour] = result.Count
		}
	}

	return hourlyCounts, nil
}

// CountByDate returns detection counts keyed by date. When species is
// non-empty only that scientific name is counted.
func (ds *DataStore) CountByDate(species string) (map[string]int, error) {
	var results []struct {
		Date  string
		Count int
	}

	dateFormat := ds.GetDateFormat()
	if dateFormat == "" {
		return nil, fmt.Errorf("unsupported dialect %q for date counts", ds.DB.Dialector.Name())
	}

	query := ds.DB.Model(&Detection{}).
		Select(fmt.Sprintf("%s as date, COUNT(*) as count", dateFormat)).
		Group("date")
	if species != "" {
		query = query.Where("scientific_name = ?", species)
	}

	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("counting detections by date: %w", err)
	}

	counts := make(map[string]int, len(results))
	for _, result := range results {
		counts[result.Date] = result.Count
	}
	return counts, nil
}

// GetStorageMetrics sums the size and duration of all saved clips.
func (ds *DataStore) GetStorageMetrics() (StorageMetrics, error) {
	return storageMetrics(ds.DB)
}

func storageMetrics(db *gorm.DB) (StorageMetrics, error) {
	var metrics struct {
		TotalBytes    int64
		TotalDuration float64
		ClipCount     int
	}

	err := db.Model(&AudioFile{}).
		Select("COALESCE(SUM(size_bytes), 0) as total_bytes",
			"COALESCE(SUM(duration_seconds), 0) as total_duration",
			"COUNT(*) as clip_count").
		Scan(&metrics).Error
	if err != nil {
		return StorageMetrics{}, fmt.Errorf("summing storage metrics: %w", err)
	}

	return StorageMetrics{
		TotalBytes:           metrics.TotalBytes,
		TotalDurationSeconds: metrics.TotalDuration,
		ClipCount:            metrics.ClipCount,
	}, nil
}

// DetectionsInRange returns all detections in [start, end) ordered by
// timestamp ascending.
func (ds *DataStore) DetectionsInRange(start, end time.Time) ([]Detection, error) {
	var detections []Detection
	err := rangeQuery(ds.DB, start, end).
		Order("timestamp ASC").
		Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("getting detections in range: %w", err)
	}
	return detections, nil
}

// Snapshot reads the dashboard aggregates inside a single transaction so
// the counts agree with each other even while inserts continue.
func (ds *DataStore) Snapshot(start, end time.Time) (AggregateSnapshot, error) {
	var snapshot AggregateSnapshot

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := rangeQuery(tx.Model(&Detection{}), start, end).Count(&snapshot.DetectionCount).Error; err != nil {
			return fmt.Errorf("counting detections: %w", err)
		}
		if err := rangeQuery(tx.Model(&Detection{}), start, end).
			Distinct("scientific_name").Count(&snapshot.UniqueSpeciesCount).Error; err != nil {
			return fmt.Errorf("counting unique species: %w", err)
		}

		counts, err := speciesCounts(tx, start, end)
		if err != nil {
			return err
		}
		snapshot.SpeciesCounts = counts

		storage, err := storageMetrics(tx)
		if err != nil {
			return err
		}
		snapshot.Storage = storage
		return nil
	})
	if err != nil {
		return AggregateSnapshot{}, err
	}
	return snapshot, nil
}

// CountSpeciesDetections counts detections of one species in [start,
// end). A zero start or end leaves that bound open.
func (ds *DataStore) CountSpeciesDetections(scientificName string, start, end time.Time) (int64, error) {
	var count int64
	query := ds.DB.Model(&Detection{}).Where("scientific_name = ?", scientificName)
	query = rangeQuery(query, start, end)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting detections for %s: %w", scientificName, err)
	}
	return count, nil
}

// FirstDetectionSince returns the earliest detection timestamp for a
// species at or after since. A zero since means all time. The zero time
// is returned when the species has no matching detections.
func (ds *DataStore) FirstDetectionSince(scientificName string, since time.Time) (time.Time, error) {
	var detection Detection
	query := ds.DB.Where("scientific_name = ?", scientificName)
	if !since.IsZero() {
		query = query.Where("timestamp >= ?", since)
	}
	err := query.Order("timestamp ASC").First(&detection).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("finding first detection of %s: %w", scientificName, err)
	}
	return detection.Timestamp, nil
}

// HourlyWeatherSeries joins per-hour detection counts with the weather
// table over [start, end). Hours without a weather row carry nil weather
// fields so correlation code can skip them.
func (ds *DataStore) HourlyWeatherSeries(start, end time.Time) ([]HourlyWeatherPoint, error) {
	var points []HourlyWeatherPoint

	query := ds.DB.Model(&Detection{}).
		Select("detections.hour_epoch as hour_epoch",
			"COUNT(*) as detection_count",
			"weather.temperature as temperature",
			"weather.humidity as humidity",
			"weather.pressure as pressure",
			"weather.wind_speed as wind_speed",
			"weather.precipitation as precipitation").
		Joins("LEFT JOIN weather ON weather.hour_epoch = detections.hour_epoch").
		Where("detections.hour_epoch IS NOT NULL")
	query = rangeQuery(query, start, end)

	err := query.Group("detections.hour_epoch").
		Order("detections.hour_epoch ASC").
		Scan(&points).Error
	if err != nil {
		return nil, fmt.Errorf("building hourly weather series: %w", err)
	}
	return points, nil
}

// rangeQuery narrows a detections query to [start, end); zero values
// leave the corresponding bound open.
func rangeQuery(query *gorm.DB, start, end time.Time) *gorm.DB {
	if !start.IsZero() {
		query = query.Where("timestamp >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("timestamp < ?", end)
	}
	return query
}
