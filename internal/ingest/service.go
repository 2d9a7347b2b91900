package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/detection"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/ebird"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/myaudio"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// Status values returned by the ingest endpoint.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusFiltered Status = "filtered"
	StatusBuffered Status = "buffered"
)

// Result is the business outcome of one ingest call. Validation and
// permanent failures are returned as errors instead.
type Result struct {
	Status      Status  `json:"status"`
	DetectionID *string `json:"detection_id"`
	Message     string  `json:"message"`
}

// RegionalFilter decides whether a detection is plausible for its
// location. The ebird package implements it.
type RegionalFilter interface {
	Evaluate(ctx context.Context, scientificName string, lat, lon *float64) ebird.Decision
}

// Notifier receives detections after their transaction has committed.
type Notifier interface {
	DetectionSaved(ctx context.Context, detected *datastore.Detection)
}

// Service implements the detection ingest endpoint. All collaborators
// except settings, store and buffer may be nil; a nil filter allows
// everything, a nil bus and notifier skip fan-out, and a non-nil remote
// client redirects persistence to a collector over HTTP.
type Service struct {
	settings *conf.Settings
	store    datastore.Interface
	buffer   *RetryBuffer
	filter   RegionalFilter
	bus      *detection.Bus
	notifier Notifier
	remote   *RemoteClient
}

// New creates the ingest service. When the settings name a remote
// collector URL, persistence goes through it instead of the local
// store.
func New(settings *conf.Settings, store datastore.Interface, buffer *RetryBuffer, filter RegionalFilter, bus *detection.Bus, notifier Notifier) *Service {
	service := &Service{
		settings: settings,
		store:    store,
		buffer:   buffer,
		filter:   filter,
		bus:      bus,
		notifier: notifier,
	}
	if url := settings.Realtime.Ingest.RemoteURL; url != "" {
		timeout := time.Duration(settings.Realtime.Ingest.RequestTimeout) * time.Second
		service.remote = NewRemoteClient(url, timeout)
	}
	return service
}

// Buffer exposes the retry buffer, shared with the flusher.
func (s *Service) Buffer() *RetryBuffer {
	return s.buffer
}

// Ingest validates and persists one detection event. Validation
// failures and permanent persistence failures return an error and are
// never buffered; transient failures buffer the event for retry and
// report StatusBuffered.
func (s *Service) Ingest(ctx context.Context, event *observation.Event) (Result, error) {
	if err := s.prepare(event); err != nil {
		return Result{}, err
	}

	var clip *ClipInfo
	if s.remote == nil && len(event.AudioData) > 0 {
		written, err := s.writeClip(event)
		if err != nil {
			getLogger().Error("Failed to write detection clip",
				"scientific_name", event.ScientificName,
				"error", err)
			return Result{}, err
		}
		clip = written
	}

	result, err := s.deliver(ctx, event, clip)
	if err == nil {
		return result, nil
	}
	if !isRetryable(err) {
		getLogger().Error("Dropping detection after permanent ingest failure",
			"scientific_name", event.ScientificName,
			"timestamp", event.Timestamp,
			"error", err)
		return Result{}, err
	}

	entry := RetryEntry{Event: *event, Clip: clip, Attempts: 1, FirstTried: time.Now()}
	if clip != nil {
		// The clip is already on disk, the retry only needs its metadata.
		entry.Event.AudioData = nil
	}
	s.buffer.Append(entry)
	getLogger().Warn("Detection buffered for retry",
		"scientific_name", event.ScientificName,
		"buffered", s.buffer.Len(),
		"error", err)
	return Result{Status: StatusBuffered, Message: "persistence unavailable, detection buffered for retry"}, nil
}

// deliver runs the regional filter and persistence for an event whose
// clip, if any, is already on disk. It never touches the retry buffer,
// so the flusher can reuse it without re-buffering its own failures.
func (s *Service) deliver(ctx context.Context, event *observation.Event, clip *ClipInfo) (Result, error) {
	if s.filter != nil {
		decision := s.filter.Evaluate(ctx, event.ScientificName, event.Latitude, event.Longitude)
		if decision.Blocked {
			getLogger().Info("Detection filtered by regional policy",
				"scientific_name", event.ScientificName,
				"region", decision.Region,
				"tier", string(decision.Tier))
			s.discardClip(clip)
			return Result{Status: StatusFiltered, Message: decision.Reason}, nil
		}
	}

	if s.remote != nil {
		return s.remote.Send(ctx, event)
	}

	detected, audioFile := buildRows(event, clip)
	if err := s.store.Save(detected, audioFile); err != nil {
		return Result{}, err
	}

	if s.bus != nil {
		s.bus.Publish(*detected)
	}
	if s.notifier != nil {
		s.notifier.DetectionSaved(ctx, detected)
	}

	id := detected.ID
	return Result{Status: StatusAccepted, DetectionID: &id, Message: "detection accepted"}, nil
}

// prepare validates the event and fills derived fields. The admit rule
// is strict: confidence below the species threshold is rejected,
// equality is admitted.
func (s *Service) prepare(event *observation.Event) error {
	if event == nil {
		return validationError("event is required")
	}
	if event.SpeciesTensor == "" {
		return validationError("species_tensor is required")
	}
	if event.Confidence < 0 || event.Confidence > 1 {
		return validationError(fmt.Sprintf("confidence %v is outside [0, 1]", event.Confidence))
	}
	if event.Timestamp.IsZero() {
		return validationError("timestamp is required")
	}
	// Valid weeks are 1..53; zero means unset and is backfilled from
	// the timestamp below, so sensor nodes can omit it.
	if event.Week < 0 || event.Week > 53 {
		return validationError(fmt.Sprintf("week %d is outside [1, 53]", event.Week))
	}
	if len(event.AudioData) > 0 {
		if event.SampleRate <= 0 {
			return validationError("sample_rate must be positive when audio data is present")
		}
		if event.Channels != 1 && event.Channels != 2 {
			return validationError("channels must be 1 or 2")
		}
	}

	if event.ScientificName == "" {
		scientificName, commonName, err := observation.ParseSpeciesString(event.SpeciesTensor)
		if err != nil {
			return err
		}
		event.ScientificName = scientificName
		if event.CommonName == "" {
			event.CommonName = commonName
		}
	}

	event.Timestamp = event.Timestamp.UTC()
	if event.Week == 0 {
		_, event.Week = event.Timestamp.ISOWeek()
	}
	if event.Threshold == 0 {
		event.Threshold = s.settings.BirdNET.Threshold
	}
	if event.Latitude == nil && event.Longitude == nil {
		if s.settings.BirdNET.Latitude != 0 || s.settings.BirdNET.Longitude != 0 {
			lat, lon := s.settings.BirdNET.Latitude, s.settings.BirdNET.Longitude
			event.Latitude, event.Longitude = &lat, &lon
		}
	}

	if event.Confidence < event.Threshold {
		return validationError(fmt.Sprintf(
			"confidence %.3f is below the species threshold %.3f", event.Confidence, event.Threshold))
	}
	return nil
}

// buildRows maps an event onto the store rows. The detection UUID is
// assigned per delivery attempt; buffered events report a null id to
// the caller, so the identity only becomes visible once a commit
// succeeds.
func buildRows(event *observation.Event, clip *ClipInfo) (*datastore.Detection, *datastore.AudioFile) {
	hourEpoch := event.Timestamp.Unix() / 3600
	detected := &datastore.Detection{
		ID:             uuid.NewString(),
		SourceNode:     event.SourceNode,
		SpeciesTensor:  event.SpeciesTensor,
		ScientificName: event.ScientificName,
		CommonName:     event.CommonName,
		Confidence:     event.Confidence,
		Timestamp:      event.Timestamp,
		Latitude:       event.Latitude,
		Longitude:      event.Longitude,
		Threshold:      event.Threshold,
		Week:           event.Week,
		Sensitivity:    event.Sensitivity,
		Overlap:        event.Overlap,
		HourEpoch:      &hourEpoch,
	}

	var audioFile *datastore.AudioFile
	if clip != nil {
		audioFile = &datastore.AudioFile{
			Path:            clip.Path,
			DurationSeconds: clip.DurationSeconds,
			SizeBytes:       clip.SizeBytes,
			RecordingStart:  clip.RecordingStart,
		}
	}
	return detected, audioFile
}

// writeClip stores the raw PCM as a WAV file under the clip export
// root, in a per-species directory named by the detection time. The
// recorded path is relative to the export root.
func (s *Service) writeClip(event *observation.Event) (*ClipInfo, error) {
	root := s.settings.ClipExportPath()
	speciesDir := sanitizePathComponent(event.ScientificName)
	base := event.Timestamp.UTC().Format("20060102_150405")

	var relPath, fullPath string
	for attempt := 0; ; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d", base, attempt)
		}
		relPath = filepath.Join(speciesDir, name+".wav")
		fullPath = filepath.Join(root, relPath)
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			break
		}
		if attempt >= 99 {
			return nil, errors.Newf("no free clip name for %s under %s", base, speciesDir).
				Component("ingest").
				Category(errors.CategoryFileIO).
				Context("operation", "write_clip").
				Build()
		}
	}

	if err := myaudio.SavePCMDataToWAV(fullPath, event.AudioData, event.SampleRate, event.Channels); err != nil {
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			Context("operation", "write_clip").
			Context("path", relPath).
			Build()
	}

	sizeBytes := int64(len(event.AudioData))
	if info, err := os.Stat(fullPath); err == nil {
		sizeBytes = info.Size()
	}
	duration := float64(len(event.AudioData)) / float64(event.SampleRate*event.Channels*2)

	return &ClipInfo{
		Path:            filepath.ToSlash(relPath),
		DurationSeconds: duration,
		SizeBytes:       sizeBytes,
		RecordingStart:  event.Timestamp,
	}, nil
}

// discardClip removes a clip whose detection will never be persisted.
func (s *Service) discardClip(clip *ClipInfo) {
	if clip == nil {
		return
	}
	fullPath := filepath.Join(s.settings.ClipExportPath(), filepath.FromSlash(clip.Path))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		getLogger().Warn("Failed to remove clip of filtered detection",
			"path", clip.Path,
			"error", err)
	}
}

// sanitizePathComponent makes a species name safe as a single directory
// component.
func sanitizePathComponent(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "unknown"
	}
	return cleaned
}

// isRetryable separates transient persistence and transport failures,
// which belong in the retry buffer, from validation and permanent
// errors, which must never be retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsCategory(err, errors.CategoryValidation) {
		return false
	}
	if errors.IsCategory(err, errors.CategoryNetwork) {
		return true
	}
	return datastore.IsTransientError(err)
}

func validationError(reason string) error {
	return errors.Newf("%s", reason).
		Component("ingest").
		Category(errors.CategoryValidation).
		Context("operation", "ingest").
		Build()
}
