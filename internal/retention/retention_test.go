package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"traced/internal/logging"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweepDeletesOldBeyondKeepCount(t *testing.T) {
	dir := t.TempDir()

	fresh := writeAged(t, dir, "trace-a.perfetto-trace", time.Hour)
	kept1 := writeAged(t, dir, "trace-b.perfetto-trace", 40*24*time.Hour)
	kept2 := writeAged(t, dir, "trace-c.perfetto-trace", 50*24*time.Hour)
	doomed := writeAged(t, dir, "trace-d.perfetto-trace", 60*24*time.Hour)

	Sweep(logging.NopLogger(), dir, 3, 28*24*time.Hour)

	for _, path := range []string{fresh, kept1, kept2} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s was deleted: %v", filepath.Base(path), err)
		}
	}
	if _, err := os.Stat(doomed); !os.IsNotExist(err) {
		t.Errorf("%s survived the sweep", filepath.Base(doomed))
	}
}

func TestSweepSparesYoungArtifacts(t *testing.T) {
	dir := t.TempDir()

	paths := []string{
		writeAged(t, dir, "trace-a.perfetto-trace", time.Hour),
		writeAged(t, dir, "trace-b.perfetto-trace", 2*time.Hour),
		writeAged(t, dir, "trace-c.perfetto-trace", 3*time.Hour),
		writeAged(t, dir, "trace-d.perfetto-trace", 4*time.Hour),
	}

	// Every artifact is beyond the keep count but younger than the age
	// threshold, so nothing is deleted.
	Sweep(logging.NopLogger(), dir, 1, 28*24*time.Hour)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s was deleted: %v", filepath.Base(path), err)
		}
	}
}

func TestSweepSkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()

	temp := writeAged(t, dir, ".trace-in-progress.trace", 90*24*time.Hour)
	writeAged(t, dir, "trace-old.perfetto-trace", 90*24*time.Hour)

	Sweep(logging.NopLogger(), dir, 0, 28*24*time.Hour)

	if _, err := os.Stat(temp); err != nil {
		t.Fatalf("in-progress artifact deleted by sweep: %v", err)
	}
}

func TestSweepIgnoresNonRecordingFiles(t *testing.T) {
	dir := t.TempDir()

	db := writeAged(t, dir, "history.db", time.Minute)
	wal := writeAged(t, dir, "history.db-wal", time.Minute)
	shm := writeAged(t, dir, "history.db-shm", time.Minute)
	stale := writeAged(t, dir, "notes.txt", 90*24*time.Hour)
	recording := writeAged(t, dir, "trace-old.perfetto-trace", 40*24*time.Hour)

	// The sidecar files must not consume retention slots: the lone
	// recording is within the keep count and survives.
	Sweep(logging.NopLogger(), dir, 3, 28*24*time.Hour)

	for _, path := range []string{db, wal, shm, stale, recording} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s was deleted: %v", filepath.Base(path), err)
		}
	}

	// Even with no slots at all, non-recording files stay put.
	Sweep(logging.NopLogger(), dir, 0, time.Minute)

	for _, path := range []string{db, wal, shm, stale} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s was deleted: %v", filepath.Base(path), err)
		}
	}
	if _, err := os.Stat(recording); !os.IsNotExist(err) {
		t.Errorf("%s survived a zero-slot sweep", filepath.Base(recording))
	}
}

func TestSweepMissingDirLogsOnly(t *testing.T) {
	// Must not panic or propagate.
	Sweep(logging.NopLogger(), filepath.Join(t.TempDir(), "absent"), 3, time.Hour)
}
