package observation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

func TestParseSpeciesString(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantScientific string
		wantCommon     string
		wantErr        bool
	}{
		{
			name:           "scientific and common",
			input:          "Turdus migratorius_American Robin",
			wantScientific: "Turdus migratorius",
			wantCommon:     "American Robin",
		},
		{
			name:           "missing separator",
			input:          "Turdus migratorius",
			wantScientific: "Turdus migratorius",
			wantCommon:     "",
		},
		{
			name:           "empty string",
			input:          "",
			wantScientific: "",
			wantCommon:     "",
		},
		{
			name:    "invalid utf8",
			input:   "Turdus\xff_Robin",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scientific, common, err := ParseSpeciesString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScientific, scientific)
			assert.Equal(t, tt.wantCommon, common)
		})
	}
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Main.Name = "FieldNode"
	s.BirdNET.Latitude = 43.65
	s.BirdNET.Longitude = -79.38
	s.BirdNET.Threshold = 0.8
	s.BirdNET.Sensitivity = 1.0
	s.Realtime.Audio.SampleRate = 48000
	s.Realtime.Audio.Channels = 1
	s.Realtime.Audio.BufferSizeSeconds = 3
	return s
}

func TestNewAt(t *testing.T) {
	settings := testSettings()
	now := time.Date(2026, 5, 12, 6, 30, 3, 0, time.UTC)

	event, err := NewAt(settings, now, 0, 3, "Cyanocitta cristata_Blue Jay", 0.91, "clip.wav", 45*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "FieldNode", event.SourceNode)
	assert.Equal(t, "Cyanocitta cristata_Blue Jay", event.SpeciesTensor)
	assert.Equal(t, "Cyanocitta cristata", event.ScientificName)
	assert.Equal(t, "Blue Jay", event.CommonName)
	assert.InDelta(t, 0.91, event.Confidence, 1e-9)

	// Detection time is backdated by the window length.
	assert.Equal(t, now.Add(-3*time.Second), event.Timestamp)

	require.NotNil(t, event.Latitude)
	require.NotNil(t, event.Longitude)
	assert.InDelta(t, 43.65, *event.Latitude, 1e-9)
	assert.InDelta(t, -79.38, *event.Longitude, 1e-9)

	_, wantWeek := now.Add(-3 * time.Second).ISOWeek()
	assert.Equal(t, wantWeek, event.Week)
	assert.Equal(t, 48000, event.SampleRate)
	assert.Equal(t, "2026-05-12", event.Date())
	assert.Equal(t, "06:30:00", event.TimeOfDay())
}

func TestNewAtWithoutCoordinates(t *testing.T) {
	settings := testSettings()
	settings.BirdNET.Latitude = 0
	settings.BirdNET.Longitude = 0

	event, err := NewAt(settings, time.Now(), 0, 3, "Passer domesticus_House Sparrow", 0.85, "", 0)
	require.NoError(t, err)
	assert.Nil(t, event.Latitude)
	assert.Nil(t, event.Longitude)
}

func TestEventWireFormat(t *testing.T) {
	settings := testSettings()
	now := time.Date(2026, 5, 12, 6, 30, 3, 0, time.UTC)

	event, err := NewAt(settings, now, 0, 3, "Cyanocitta cristata_Blue Jay", 0.91, "clip.wav", 0)
	require.NoError(t, err)
	event.AudioData = []byte{0x01, 0x00, 0xff, 0x7f}

	data, err := json.Marshal(&event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "Cyanocitta cristata", decoded["scientific_name"])
	assert.Equal(t, "Blue Jay", decoded["common_name"])
	assert.Equal(t, "Cyanocitta cristata_Blue Jay", decoded["species_tensor"])
	// []byte marshals to base64 on the wire.
	assert.Equal(t, "AQD/fw==", decoded["audio_data"])
	assert.Contains(t, decoded, "species_confidence_threshold")
	assert.Contains(t, decoded, "sensitivity_setting")

	var roundTrip Event
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	assert.Equal(t, event.ScientificName, roundTrip.ScientificName)
	assert.Equal(t, event.AudioData, roundTrip.AudioData)
	assert.True(t, event.Timestamp.Equal(roundTrip.Timestamp))
}
