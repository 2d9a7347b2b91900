package diskmanager

import (
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// AgeBasedCleanup removes clips older than the configured maximum age,
// keeping at least MinClips per species. Deletion stops when the quit
// channel closes.
func AgeBasedCleanup(quit <-chan struct{}, settings *conf.Settings) (int, error) {
	logger := getLogger()
	retention := settings.Realtime.Audio.Export.Retention

	maxAgeHours, err := conf.ParseRetentionPeriod(retention.MaxAge)
	if err != nil {
		return 0, err
	}

	clips, err := CollectClips(settings.ClipExportPath())
	if err != nil {
		return 0, err
	}

	counts := countPerSpecies(clips)
	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)
	deleted := 0

	for i := range clips {
		select {
		case <-quit:
			logger.Info("Age cleanup interrupted", "deleted", deleted)
			return deleted, nil
		default:
		}

		clip := &clips[i]
		if !clip.Timestamp.Before(cutoff) {
			// Clips are sorted oldest first, nothing newer can match.
			break
		}
		if counts[clip.Species] <= retention.MinClips {
			continue
		}
		if err := removeClip(clip, logger); err != nil {
			return deleted, err
		}
		counts[clip.Species]--
		deleted++

		if deleted >= maxDeletionsPerRun {
			logger.Info("Age cleanup hit per-run deletion cap", "deleted", deleted)
			return deleted, nil
		}
	}

	logger.Info("Age retention policy applied", "deleted", deleted, "max_age", retention.MaxAge)
	return deleted, nil
}
