package execx

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"traced/internal/logging"
)

func TestRunLogsStderrAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	sh := NewShell(slog.New(slog.NewTextHandler(&buf, nil)))

	h, err := sh.Run("echo boom 1>&2", Options{Tag: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Wait(); err != nil {
		t.Fatal(err)
	}

	logged := buf.String()
	if !strings.Contains(logged, "level=ERROR") {
		t.Fatalf("stderr line not logged at error level: %q", logged)
	}
	if !strings.Contains(logged, "boom") || !strings.Contains(logged, "tool:stderr") {
		t.Fatalf("stderr line missing from log: %q", logged)
	}
}

func TestRunWithDeadlineExitCodes(t *testing.T) {
	sh := NewShell(logging.NopLogger())

	code, err := sh.RunWithDeadline("exit 0", Options{}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	code, err = sh.RunWithDeadline("exit 2", Options{}, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunWithDeadlineTimeout(t *testing.T) {
	sh := NewShell(logging.NopLogger())

	start := time.Now()
	_, err := sh.RunWithDeadline("sleep 10", Options{}, 200*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %v, kill did not land", elapsed)
	}
}

func TestRunCapturesStdout(t *testing.T) {
	sh := NewShell(logging.NopLogger())

	var buf bytes.Buffer
	h, err := sh.Run("printf 'one\\ntwo\\n'", Options{Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	code, err := h.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got := buf.String(); got != "one\ntwo\n" {
		t.Fatalf("stdout = %q", got)
	}
}

func TestRunAppliesEnvOverride(t *testing.T) {
	sh := NewShell(logging.NopLogger())

	var buf bytes.Buffer
	h, err := sh.Run("echo $TMPDIR", Options{
		Env:    []string{"TMPDIR=/tmp/traced-test"},
		Stdout: &buf,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "/tmp/traced-test" {
		t.Fatalf("TMPDIR = %q", got)
	}
}

func TestRunHeredoc(t *testing.T) {
	sh := NewShell(logging.NopLogger())

	var buf bytes.Buffer
	h, err := sh.Run("cat <<MARKER\nline one\nline two\nMARKER", Options{Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "line one\nline two\n" {
		t.Fatalf("heredoc output = %q", got)
	}
}
