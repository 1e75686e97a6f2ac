package trace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"traced/internal/logging"
)

const timestampLayout = "2006-01-02-15-04-05"

// OutputFilename renders the artifact filename grammar:
// <prefix>-<board>-<buildId>-<timestamp>.<ext>.
func OutputFilename(t RecordingType, board, buildID, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s.%s",
		t.Prefix(), board, buildID, now.Format(timestampLayout), ext)
}

// RecoveredFilename names an artifact rescued from a crashed prior
// session. The capture mode of the dead session is unknown, so the
// generic prefix is used.
func RecoveredFilename(board, buildID, ext string, now time.Time) string {
	return "recovered-" + OutputFilename(RecordingUnknown, board, buildID, ext, now)
}

// HostBuildInfo returns the board and build identifiers embedded in
// output filenames, taken from the running kernel.
func HostBuildInfo() (board, buildID string) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "unknown", "unknown"
	}
	board = sanitizeNamePart(charsToString(uts.Machine[:]))
	buildID = sanitizeNamePart(charsToString(uts.Release[:]))
	return board, buildID
}

// ClearSavedRecordings removes finished and recovered artifacts from
// dir. The in-progress temporary artifact is untouched.
func ClearSavedRecordings(logger *slog.Logger, dir string) {
	for _, pattern := range []string{"trace-*.*", "recovered-*.*", "stack-samples-*.*", "recording-*.*"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				logger.Error("failed to remove saved recording",
					logging.String("path", path), logging.Error(err))
			}
		}
	}
}

func charsToString(raw []byte) string {
	if i := strings.IndexByte(string(raw), 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}

// sanitizeNamePart keeps filename segments to word characters, dots,
// and dashes so the grammar stays parseable.
func sanitizeNamePart(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
