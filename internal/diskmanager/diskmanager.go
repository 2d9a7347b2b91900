// Package diskmanager enforces retention policies over the exported
// clip tree. Clips live in per-species directories named by detection
// time; the policies never touch anything else under the export root.
package diskmanager

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// allowedExtensions are the clip file types the policies consider.
var allowedExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
}

// maxDeletionsPerRun caps how many clips a single policy run removes.
const maxDeletionsPerRun = 1000

func getLogger() *slog.Logger {
	if logger := logging.ForService("diskmanager"); logger != nil {
		return logger
	}
	return slog.Default()
}

// ClipFile is one exported clip found under the export root.
type ClipFile struct {
	Path      string // absolute path
	Species   string // species directory name
	Timestamp time.Time
	Size      int64
}

// CollectClips walks the export root and returns all clips, oldest
// first. The clip timestamp is parsed from the file name and falls back
// to the file modification time.
func CollectClips(baseDir string) ([]ClipFile, error) {
	var clips []ClipFile

	err := filepath.WalkDir(baseDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == baseDir {
				return filepath.SkipAll
			}
			return err
		}
		if entry.IsDir() || !allowedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		clips = append(clips, ClipFile{
			Path:      path,
			Species:   filepath.Base(filepath.Dir(path)),
			Timestamp: clipTimestamp(entry.Name(), info.ModTime()),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryFileIO).
			Context("base_dir", baseDir).
			Build()
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].Timestamp.Before(clips[j].Timestamp)
	})
	return clips, nil
}

// clipTimestamp parses the detection time out of a clip file name of
// the form 20060102_150405[_n].ext.
func clipTimestamp(name string, fallback time.Time) time.Time {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) >= 15 {
		if ts, err := time.Parse("20060102_150405", base[:15]); err == nil {
			return ts
		}
	}
	return fallback
}

// countPerSpecies tallies how many clips each species directory holds.
func countPerSpecies(clips []ClipFile) map[string]int {
	counts := make(map[string]int)
	for i := range clips {
		counts[clips[i].Species]++
	}
	return counts
}

// removeClip deletes one clip and prunes its species directory if it
// became empty.
func removeClip(clip *ClipFile, logger *slog.Logger) error {
	if err := os.Remove(clip.Path); err != nil {
		return errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryFileIO).
			Context("path", clip.Path).
			Build()
	}
	logger.Debug("Removed clip", "path", clip.Path, "species", clip.Species)

	// Best effort, the directory may still hold clips.
	_ = os.Remove(filepath.Dir(clip.Path))
	return nil
}
