package perfetto

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"traced/internal/execx"
	"traced/internal/logging"
	"traced/internal/trace"
)

const (
	// Name identifies the backing engine.
	Name = "PERFETTO"

	// OutputExtension is the file extension of produced recordings.
	OutputExtension = "perfetto-trace"

	// TempArtifactName is the well-known in-progress recording file.
	TempArtifactName = ".trace-in-progress.trace"

	lockFileName = ".traced.lock"
)

// ProtocolError reports that the daemon behaved outside its contract:
// an activity probe returned an exit code other than 0 or 2, or a
// rendered configuration collided with the heredoc sentinel. Session
// semantics can no longer be trusted, so callers must escalate rather
// than retry.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("perfetto protocol violation during %s: %s", e.Op, e.Detail)
}

// Runner abstracts deadline-bounded command execution for testability.
// *execx.Shell is the production implementation.
type Runner interface {
	RunWithDeadline(command string, opts execx.Options, timeout time.Duration) (int, error)
}

// Options configures an Engine. Zero-valued fields fall back to the
// documented defaults.
type Options struct {
	Binary         string
	SessionTag     string
	OutputDir      string
	StartupTimeout time.Duration
	StopTimeout    time.Duration
	ListTimeout    time.Duration
	NumCPUs        int
	Now            func() time.Time
}

// Engine drives recording sessions on the perfetto daemon. Sessions are
// detached: the daemon keeps capturing after the controlling process
// exits, identified by the session tag.
type Engine struct {
	runner Runner
	logger *slog.Logger

	binary     string
	sessionTag string
	outputDir  string

	startupTimeout time.Duration
	stopTimeout    time.Duration
	listTimeout    time.Duration

	numCPUs int
	now     func() time.Time

	board   string
	buildID string

	lock *flock.Flock
}

// NewEngine constructs an Engine. runner and logger are required.
func NewEngine(opts Options, runner Runner, logger *slog.Logger) (*Engine, error) {
	if runner == nil {
		return nil, errors.New("perfetto: runner required")
	}
	if logger == nil {
		return nil, errors.New("perfetto: logger required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.New("perfetto: output directory required")
	}
	e := &Engine{
		runner:         runner,
		logger:         logger,
		binary:         opts.Binary,
		sessionTag:     opts.SessionTag,
		outputDir:      opts.OutputDir,
		startupTimeout: opts.StartupTimeout,
		stopTimeout:    opts.StopTimeout,
		listTimeout:    opts.ListTimeout,
		numCPUs:        opts.NumCPUs,
		now:            opts.Now,
	}
	if e.binary == "" {
		e.binary = "perfetto"
	}
	if e.sessionTag == "" {
		e.sessionTag = "traceur"
	}
	if e.startupTimeout <= 0 {
		e.startupTimeout = 10 * time.Second
	}
	if e.stopTimeout <= 0 {
		e.stopTimeout = 30 * time.Second
	}
	if e.listTimeout <= 0 {
		e.listTimeout = 10 * time.Second
	}
	if e.numCPUs <= 0 {
		e.numCPUs = runtime.NumCPU()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.board, e.buildID = trace.HostBuildInfo()
	e.lock = flock.New(filepath.Join(e.outputDir, lockFileName))
	return e, nil
}

// Name returns the engine identifier.
func (e *Engine) Name() string { return Name }

// OutputExtension returns the recording file extension.
func (e *Engine) OutputExtension() string { return OutputExtension }

// TempArtifactPath returns the in-progress recording location.
func (e *Engine) TempArtifactPath() string {
	return filepath.Join(e.outputDir, TempArtifactName)
}

// IsTracingOn probes the daemon for a detached session under the
// engine's tag. Exit code 0 means active, 2 means inactive; any other
// code is a protocol violation and comes back as a ProtocolError.
func (e *Engine) IsTracingOn() (bool, error) {
	cmd := fmt.Sprintf("%s --is_detached=%s", e.binary, e.sessionTag)
	code, err := e.runner.RunWithDeadline(cmd, execx.Options{Tag: "perfetto"}, e.listTimeout)
	if err != nil {
		return false, fmt.Errorf("activity probe: %w", err)
	}
	switch code {
	case 0:
		return true, nil
	case 2:
		return false, nil
	default:
		return false, &ProtocolError{
			Op:     "activity probe",
			Detail: fmt.Sprintf("unexpected exit code %d", code),
		}
	}
}

// TraceStart begins a detached trace session for req. It returns false
// without touching daemon state when a session is already active or
// when another controller holds the output directory lock.
func (e *Engine) TraceStart(req trace.Request) (bool, error) {
	locked, err := e.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		e.logger.Error("another controller is mid-operation, not starting")
		return false, nil
	}
	defer e.unlock()

	active, err := e.IsTracingOn()
	if err != nil {
		return false, err
	}
	if active {
		e.logger.Error("attempting to start trace but trace is already in progress")
		return false, nil
	}
	e.recoverExistingRecording()

	cfg, warnings := RenderConfig(req, e.numCPUs)
	for _, warning := range warnings {
		e.logger.Warn(warning)
	}
	return e.startWithConfig(cfg)
}

// StackSampleStart begins a detached callstack-sampling session.
func (e *Engine) StackSampleStart(attachToBugreport bool) (bool, error) {
	locked, err := e.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		e.logger.Error("another controller is mid-operation, not starting")
		return false, nil
	}
	defer e.unlock()

	active, err := e.IsTracingOn()
	if err != nil {
		return false, err
	}
	if active {
		e.logger.Error("attempting to start stack sampling but perfetto is already active")
		return false, nil
	}
	e.recoverExistingRecording()

	return e.startWithConfig(RenderStackSampleConfig(attachToBugreport, e.numCPUs))
}

// TraceStop stops and reattaches the detached session. Stop is best
// effort: the daemon may already have exited on its own, so a timeout
// or non-zero exit is logged rather than escalated.
func (e *Engine) TraceStop() error {
	e.logger.Debug("stopping perfetto trace")

	active, err := e.IsTracingOn()
	if err != nil {
		return err
	}
	if !active {
		e.logger.Warn("no trace appears to be in progress, stopping may not work")
	}

	cmd := fmt.Sprintf("%s --stop --attach=%s", e.binary, e.sessionTag)
	code, err := e.runner.RunWithDeadline(cmd, execx.Options{Tag: "perfetto"}, e.stopTimeout)
	if errors.Is(err, execx.ErrTimeout) {
		e.logger.Error("perfetto stop timed out", logging.Duration("timeout", e.stopTimeout))
		return nil
	}
	if err != nil {
		return fmt.Errorf("perfetto stop: %w", err)
	}
	if code != 0 {
		e.logger.Error("perfetto stop failed", logging.Int("exit_code", code))
	}
	return nil
}

// TraceDump stops the session and atomically relocates the in-progress
// artifact to outPath, leaving it world-readable. It returns false and
// performs no filesystem mutation when the daemon is still active after
// stopping or when there is no in-progress artifact.
func (e *Engine) TraceDump(outPath string) (bool, error) {
	if err := e.TraceStop(); err != nil {
		return false, err
	}

	active, err := e.IsTracingOn()
	if err != nil {
		return false, err
	}
	if active {
		e.logger.Error("trace was not stopped successfully, aborting dump")
		return false, nil
	}

	temp := e.TempArtifactPath()
	if _, err := os.Stat(temp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Error("in-progress trace file doesn't exist, aborting dump")
			return false, nil
		}
		return false, fmt.Errorf("stat in-progress trace: %w", err)
	}

	e.logger.Info("saving perfetto trace", logging.String("path", outPath))

	if err := os.Rename(temp, outPath); err != nil {
		return false, fmt.Errorf("relocate recording: %w", err)
	}
	if err := os.Chmod(outPath, 0o666); err != nil {
		e.logger.Warn("could not widen recording permissions",
			logging.String("path", outPath), logging.Error(err))
	}
	return true, nil
}

// startWithConfig launches the daemon detached, delivering cfg inline
// through a sentinel-guarded heredoc.
func (e *Engine) startWithConfig(cfg string) (bool, error) {
	// A config containing the sentinel would end the heredoc early.
	// This should never happen; treat it as an injection attempt.
	if strings.Contains(cfg, Marker) {
		return false, &ProtocolError{
			Op:     "start",
			Detail: "rendered configuration contains the heredoc sentinel",
		}
	}

	cmd := fmt.Sprintf("%s --detach=%s -o %s -c - --txt <<%s\n%s\n%s",
		e.binary, e.sessionTag, e.TempArtifactPath(), Marker, cfg, Marker)

	e.logger.Info("starting perfetto trace")
	code, err := e.runner.RunWithDeadline(cmd, execx.Options{
		Env: []string{"TMPDIR=" + e.outputDir},
		Tag: "perfetto",
	}, e.startupTimeout)
	if errors.Is(err, execx.ErrTimeout) {
		e.logger.Error("perfetto start timed out, no session established")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("perfetto start: %w", err)
	}
	if code != 0 {
		e.logger.Error("perfetto start failed", logging.Int("exit_code", code))
		return false, nil
	}

	e.logger.Info("perfetto trace started")
	return true, nil
}

// recoverExistingRecording saves a temporary recording left behind by a
// crashed prior session under a recovered filename. Failure never
// blocks the new session.
func (e *Engine) recoverExistingRecording() {
	temp := e.TempArtifactPath()
	if _, err := os.Stat(temp); err != nil {
		return
	}

	name := trace.RecoveredFilename(e.board, e.buildID, OutputExtension, e.now())
	ok, err := e.TraceDump(filepath.Join(e.outputDir, name))
	if err != nil || !ok {
		e.logger.Warn("failed to recover in-progress trace", logging.Error(err))
	}
}

func (e *Engine) unlock() {
	if err := e.lock.Unlock(); err != nil {
		e.logger.Warn("release output lock", logging.Error(err))
	}
}
