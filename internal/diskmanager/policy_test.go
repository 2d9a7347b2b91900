package diskmanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

func writeClipFile(t *testing.T, root, species, name string) string {
	t.Helper()
	dir := filepath.Join(root, species)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("RIFFdata"), 0o644))
	return path
}

func retentionSettings(t *testing.T, policy string) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Realtime.Audio.Export.Enabled = true
	settings.Realtime.Audio.Export.Path = t.TempDir()
	settings.Realtime.Audio.Export.Retention.Policy = policy
	settings.Realtime.Audio.Export.Retention.MaxAge = "24h"
	settings.Realtime.Audio.Export.Retention.MaxUsage = "80%"
	settings.Realtime.Audio.Export.Retention.MinClips = 0
	return settings
}

func TestCollectClipsParsesNameAndSortsOldestFirst(t *testing.T) {
	root := t.TempDir()
	writeClipFile(t, root, "Turdus_merula", "20250102_080000.wav")
	writeClipFile(t, root, "Turdus_merula", "20250101_080000.wav")
	writeClipFile(t, root, "Corvus_corax", "20250103_080000.flac")
	// Non-audio files are ignored.
	writeClipFile(t, root, "Corvus_corax", "notes.txt")

	clips, err := CollectClips(root)
	require.NoError(t, err)
	require.Len(t, clips, 3)

	assert.Equal(t, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), clips[0].Timestamp)
	assert.Equal(t, "Turdus_merula", clips[0].Species)
	assert.Equal(t, "Corvus_corax", clips[2].Species)
}

func TestCollectClipsMissingRoot(t *testing.T) {
	clips, err := CollectClips(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestAgeBasedCleanupRemovesOnlyExpired(t *testing.T) {
	settings := retentionSettings(t, "age")
	root := settings.ClipExportPath()

	old := time.Now().Add(-48 * time.Hour).UTC().Format("20060102_150405")
	fresh := time.Now().UTC().Format("20060102_150405")
	oldPath := writeClipFile(t, root, "Turdus_merula", old+".wav")
	freshPath := writeClipFile(t, root, "Turdus_merula", fresh+".wav")

	deleted, err := AgeBasedCleanup(make(chan struct{}), settings)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
}

func TestAgeBasedCleanupKeepsMinClips(t *testing.T) {
	settings := retentionSettings(t, "age")
	settings.Realtime.Audio.Export.Retention.MinClips = 2
	root := settings.ClipExportPath()

	base := time.Now().Add(-72 * time.Hour).UTC()
	for i := range 2 {
		writeClipFile(t, root, "Turdus_merula", base.Add(time.Duration(i)*time.Hour).Format("20060102_150405")+".wav")
	}

	deleted, err := AgeBasedCleanup(make(chan struct{}), settings)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted, "species at minimum clip count must be kept")
}

func TestAgeBasedCleanupInvalidRetention(t *testing.T) {
	settings := retentionSettings(t, "age")
	settings.Realtime.Audio.Export.Retention.MaxAge = "soon"
	_, err := AgeBasedCleanup(make(chan struct{}), settings)
	assert.Error(t, err)
}

func TestUsageBasedCleanupBelowThresholdNoop(t *testing.T) {
	settings := retentionSettings(t, "usage")
	writeClipFile(t, settings.ClipExportPath(), "Turdus_merula", "20250101_080000.wav")

	original := diskUsagePercent
	diskUsagePercent = func(string) (float64, error) { return 40, nil }
	defer func() { diskUsagePercent = original }()

	deleted, err := UsageBasedCleanup(make(chan struct{}), settings)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestUsageBasedCleanupDeletesOldestFirst(t *testing.T) {
	settings := retentionSettings(t, "usage")
	root := settings.ClipExportPath()

	oldest := writeClipFile(t, root, "Turdus_merula", "20250101_080000.wav")
	newest := writeClipFile(t, root, "Turdus_merula", "20250106_080000.wav")

	original := diskUsagePercent
	diskUsagePercent = func(string) (float64, error) { return 95, nil }
	defer func() { diskUsagePercent = original }()

	deleted, err := UsageBasedCleanup(make(chan struct{}), settings)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = os.Stat(oldest)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newest)
	assert.True(t, os.IsNotExist(err))
}

func TestNewJanitorDisabled(t *testing.T) {
	settings := retentionSettings(t, "none")
	assert.Nil(t, NewJanitor(settings))

	settings = retentionSettings(t, "age")
	settings.Realtime.Audio.Export.Enabled = false
	assert.Nil(t, NewJanitor(settings))

	assert.NotNil(t, NewJanitor(retentionSettings(t, "age")))
}
