package detection

import (
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// LiveEvent is the wire form of a detection pushed to stream
// subscribers. Timestamps are UTC ISO 8601 with an explicit Z suffix.
type LiveEvent struct {
	ID             string   `json:"id"`
	ScientificName string   `json:"scientific_name"`
	CommonName     string   `json:"common_name"`
	Confidence     float64  `json:"confidence"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Timestamp      string   `json:"timestamp"`
}

// NewLiveEvent converts a persisted detection into its stream envelope.
func NewLiveEvent(detection datastore.Detection) LiveEvent {
	return LiveEvent{
		ID:             detection.ID,
		ScientificName: detection.ScientificName,
		CommonName:     detection.CommonName,
		Confidence:     detection.Confidence,
		Latitude:       detection.Latitude,
		Longitude:      detection.Longitude,
		Timestamp:      detection.Timestamp.UTC().Format(time.RFC3339),
	}
}
