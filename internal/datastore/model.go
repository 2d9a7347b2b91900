package datastore

import (
	"time"
)

// Detection represents a single classification event admitted by the
// ingest pipeline. The ID is a UUID assigned at ingest time so that
// detections can be referenced across nodes without coordinating
// database sequences.
type Detection struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	SourceNode     string    // node name from the ingest event, empty for local detections
	SpeciesTensor  string    `gorm:"not null"` // raw classifier label, "Scientific_Common"
	ScientificName string    `gorm:"index:idx_detections_species_timestamp,priority:1"`
	CommonName     string    // common name as reported by the classifier label
	Confidence     float64   `gorm:"index:idx_detections_confidence"`
	Timestamp      time.Time `gorm:"index:idx_detections_timestamp;index:idx_detections_species_timestamp,priority:2"`
	Latitude       *float64  // optional capture coordinates
	Longitude      *float64
	Threshold      float64 // species confidence threshold in effect at admit time
	Week           int     // ISO week number of the detection
	Sensitivity    float64 // classifier sensitivity setting
	Overlap        float64 // analysis window overlap in seconds
	HourEpoch      *int64  `gorm:"index:idx_detections_hour_epoch"` // floor(unix seconds / 3600), joins weather
	AudioFileID    *uint
	AudioFile      *AudioFile
}

// TableName overrides the GORM default pluralization.
func (Detection) TableName() string {
	return "detections"
}

// AudioFile represents a saved clip backing one detection. The row is
// created in the same transaction as its Detection; the file itself is
// written to disk just before the transaction begins.
type AudioFile struct {
	ID              uint   `gorm:"primaryKey"`
	Path            string `gorm:"uniqueIndex;not null"` // relative to the clip export root
	DurationSeconds float64
	SizeBytes       int64
	RecordingStart  time.Time
	CreatedAt       time.Time
}

func (AudioFile) TableName() string {
	return "audio_files"
}

// HourlyWeather represents one hourly weather observation. Rows are
// keyed by hour epoch so detections join on their own HourEpoch column.
type HourlyWeather struct {
	ID            uint  `gorm:"primaryKey"`
	HourEpoch     int64 `gorm:"uniqueIndex"`
	Time          time.Time
	Temperature   float64
	Humidity      float64
	Pressure      float64
	WindSpeed     float64
	Precipitation float64
	WindDeg       float64
	Clouds        int
	Provider      string // weather provider that produced the observation
	Description   string // short human readable conditions summary
}

func (HourlyWeather) TableName() string {
	return "weather"
}

// SpeciesCount is one row of the per-species tally aggregate.
type SpeciesCount struct {
	ScientificName string
	CommonName     string
	Count          int
}

// StorageMetrics summarizes the persisted audio clips.
type StorageMetrics struct {
	TotalBytes           int64
	TotalDurationSeconds float64
	ClipCount            int
}

// AggregateSnapshot bundles the dashboard aggregates read in one
// transaction so the counts are consistent with each other.
type AggregateSnapshot struct {
	DetectionCount     int64
	UniqueSpeciesCount int64
	SpeciesCounts      []SpeciesCount
	Storage            StorageMetrics
}

// HourlyWeatherPoint joins the per-hour detection count with the weather
// observation for the same hour. Weather fields are nil when no
// observation was recorded for that hour.
type HourlyWeatherPoint struct {
	HourEpoch      int64
	DetectionCount int
	Temperature    *float64
	Humidity       *float64
	Pressure       *float64
	WindSpeed      *float64
	Precipitation  *float64
}
