// Package observation assembles detection events from classifier output.
package observation

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// Event represents a single detection event on its way to the ingest
// endpoint. AudioData is raw PCM int16 little-endian; it marshals to
// base64 on the wire.
type Event struct {
	SourceNode     string        `json:"source_node,omitempty"`
	SpeciesTensor  string        `json:"species_tensor"`
	ScientificName string        `json:"scientific_name"`
	CommonName     string        `json:"common_name"`
	Confidence     float64       `json:"confidence"`
	Timestamp      time.Time     `json:"timestamp"`
	AudioData      []byte        `json:"audio_data,omitempty"`
	SampleRate     int           `json:"sample_rate"`
	Channels       int           `json:"channels"`
	Latitude       *float64      `json:"latitude"`
	Longitude      *float64      `json:"longitude"`
	Threshold      float64       `json:"species_confidence_threshold"`
	Week           int           `json:"week"`
	Sensitivity    float64       `json:"sensitivity_setting"`
	Overlap        float64       `json:"overlap"`
	BeginTime      float64       `json:"begin_time,omitempty"`
	EndTime        float64       `json:"end_time,omitempty"`
	ClipName       string        `json:"clip_name,omitempty"`
	ProcessingTime time.Duration `json:"-"`
}

// ParseSpeciesString extracts the scientific name and common name from a
// species tensor label. The expected format is "<scientific>_<common>";
// when the separator is absent the whole string is the scientific name
// and the common name is left empty.
func ParseSpeciesString(species string) (scientificName, commonName string, err error) {
	if !utf8.ValidString(species) {
		return "", "", errors.Newf("species label is not valid UTF-8").
			Component("observation").
			Category(errors.CategoryValidation).
			Context("operation", "parse-species-string").
			Build()
	}

	scientificName, commonName, found := strings.Cut(species, "_")
	if !found {
		return species, "", nil
	}
	return scientificName, commonName, nil
}

// New creates an Event for the given species tensor using the current time.
func New(settings *conf.Settings, beginTime, endTime float64, species string, confidence float64, clipName string, elapsedTime time.Duration) (Event, error) {
	return NewAt(settings, time.Now(), beginTime, endTime, species, confidence, clipName, elapsedTime)
}

// NewAt creates an Event with an explicit wall-clock time. The detection
// time is backdated by the analysis window length to account for the
// buffering delay between capture and classification.
func NewAt(settings *conf.Settings, now time.Time, beginTime, endTime float64, species string, confidence float64, clipName string, elapsedTime time.Duration) (Event, error) {
	scientificName, commonName, err := ParseSpeciesString(species)
	if err != nil {
		return Event{}, err
	}

	windowSeconds := settings.Realtime.Audio.BufferSizeSeconds
	if windowSeconds <= 0 {
		windowSeconds = conf.CaptureLength
	}
	detectionTime := now.Add(-time.Duration(windowSeconds) * time.Second)

	var lat, lon *float64
	if settings.BirdNET.Latitude != 0 || settings.BirdNET.Longitude != 0 {
		latv, lonv := settings.BirdNET.Latitude, settings.BirdNET.Longitude
		lat, lon = &latv, &lonv
	}

	_, week := detectionTime.ISOWeek()

	return Event{
		SourceNode:     settings.Main.Name,
		SpeciesTensor:  species,
		ScientificName: scientificName,
		CommonName:     commonName,
		Confidence:     confidence,
		Timestamp:      detectionTime,
		SampleRate:     settings.Realtime.Audio.SampleRate,
		Channels:       settings.Realtime.Audio.Channels,
		Latitude:       lat,
		Longitude:      lon,
		Threshold:      settings.BirdNET.Threshold,
		Week:           week,
		Sensitivity:    settings.BirdNET.Sensitivity,
		Overlap:        settings.BirdNET.Overlap,
		BeginTime:      beginTime,
		EndTime:        endTime,
		ClipName:       clipName,
		ProcessingTime: elapsedTime,
	}, nil
}

// Date returns the event date in ISO 8601 format.
func (e *Event) Date() string {
	return e.Timestamp.Format(time.DateOnly)
}

// Time returns the event time in 24-hour format.
func (e *Event) TimeOfDay() string {
	return e.Timestamp.Format(time.TimeOnly)
}
