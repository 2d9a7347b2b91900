package diskmanager

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
)

// diskUsagePercent is replaceable in tests.
var diskUsagePercent = func(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// UsageBasedCleanup deletes the oldest clips until disk usage of the
// export volume drops below the configured threshold, keeping at least
// MinClips per species.
func UsageBasedCleanup(quit <-chan struct{}, settings *conf.Settings) (int, error) {
	logger := getLogger()
	retention := settings.Realtime.Audio.Export.Retention

	threshold, err := conf.ParsePercentage(retention.MaxUsage)
	if err != nil {
		return 0, err
	}

	baseDir := settings.ClipExportPath()
	used, err := diskUsagePercent(baseDir)
	if err != nil {
		return 0, err
	}
	if used < threshold {
		logger.Debug("Disk usage below threshold, nothing to do",
			"used_percent", used, "threshold", threshold)
		return 0, nil
	}

	clips, err := CollectClips(baseDir)
	if err != nil {
		return 0, err
	}

	counts := countPerSpecies(clips)
	deleted := 0

	for i := range clips {
		select {
		case <-quit:
			logger.Info("Usage cleanup interrupted", "deleted", deleted)
			return deleted, nil
		default:
		}

		clip := &clips[i]
		if counts[clip.Species] <= retention.MinClips {
			continue
		}
		if err := removeClip(clip, logger); err != nil {
			return deleted, err
		}
		counts[clip.Species]--
		deleted++

		if deleted >= maxDeletionsPerRun {
			break
		}
		// Re-check usage every few deletions; statfs is cheap but not free.
		if deleted%10 == 0 {
			used, err = diskUsagePercent(baseDir)
			if err != nil {
				return deleted, err
			}
			if used < threshold {
				break
			}
		}
	}

	logger.Info("Usage retention policy applied",
		"deleted", deleted, "threshold", threshold)
	return deleted, nil
}
