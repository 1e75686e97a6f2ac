// Package retention prunes old recordings from the output directory.
//
// Sweeps run only after an artifact has been safely renamed into place,
// never on the save path itself; failures are logged and never
// propagated.
package retention

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"traced/internal/logging"
)

type artifact struct {
	path    string
	modTime time.Time
}

// artifactPrefixes names the files the sweep is allowed to delete.
// Anything else sharing the directory (the history database and its
// WAL/SHM sidecars, dotfiles) is not a recording and must neither be
// removed nor occupy a retention slot.
var artifactPrefixes = []string{"trace-", "stack-samples-", "recording-", "recovered-"}

func isArtifact(name string) bool {
	for _, prefix := range artifactPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Sweep deletes recordings in dir that exceed both thresholds: more
// than minKeepCount newer artifacts exist AND the artifact is older
// than minKeepAge. Only files matching the recording filename grammar
// are considered; the just-created recording always has an immature
// timestamp and is therefore safe from a concurrent sweep.
func Sweep(logger *slog.Logger, dir string, minKeepCount int, minKeepAge time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("retention sweep could not read directory",
			logging.String("dir", dir), logging.Error(err))
		return
	}

	cutoff := time.Now().Add(-minKeepAge)

	var artifacts []artifact
	for _, entry := range entries {
		if entry.IsDir() || !isArtifact(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, artifact{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	// Newest first; the first minKeepCount entries are always retained.
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].modTime.After(artifacts[j].modTime)
	})

	for i, a := range artifacts {
		if i < minKeepCount {
			continue
		}
		if !a.modTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(a.path); err != nil {
			logger.Error("retention sweep failed to delete recording",
				logging.String("path", a.path), logging.Error(err))
			continue
		}
		logger.Info("retention sweep deleted old recording", logging.String("path", a.path))
	}
}
