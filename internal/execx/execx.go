package execx

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"traced/internal/logging"
)

// ErrTimeout reports that a command exceeded its deadline and was
// force-terminated. Callers must treat this as a failed operation; no
// handle or exit code is available.
var ErrTimeout = errors.New("execx: command timed out")

// Options adjusts how a command is spawned and how its output is handled.
type Options struct {
	// Env holds additional KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
	// Tag labels drained output lines in the log.
	Tag string
	// Stdout, when set, receives the raw stdout stream instead of the log.
	Stdout io.Writer
	// LogStdout surfaces stdout lines to the log. Ignored when Stdout is set.
	LogStdout bool
}

// Shell runs commands through `sh -c`, draining stdout and stderr on
// background goroutines so the child never blocks on a full pipe.
type Shell struct {
	logger *slog.Logger
}

// NewShell constructs a Shell that drains subprocess output into logger.
func NewShell(logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{logger: logger}
}

// Handle represents a spawned subprocess. The underlying OS process and
// its drain goroutines are owned by the handle for their entire lifetime.
type Handle struct {
	cmd    *exec.Cmd
	drains sync.WaitGroup

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

// Run spawns the command and returns immediately. Output draining starts
// before Run returns.
func (s *Shell) Run(command string, opts Options) (*Handle, error) {
	cmd := exec.Command("sh", "-c", command)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	// A fresh process group so a deadline kill reaps shell and child both.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	tag := opts.Tag
	if tag == "" {
		tag = "exec"
	}
	s.logger.Debug("exec", logging.String("command", command), logging.String("tag", tag))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	h := &Handle{cmd: cmd}
	h.drains.Add(2)

	go func() {
		defer h.drains.Done()
		if opts.Stdout != nil {
			if _, err := io.Copy(opts.Stdout, stdout); err != nil {
				s.logger.Warn("stdout stream error", logging.String("tag", tag), logging.Error(err))
			}
			return
		}
		drainLines(stdout, func(line string) {
			if opts.LogStdout {
				s.logger.Info(tag+":stdout", logging.String("line", line))
			}
		})
	}()
	go func() {
		defer h.drains.Done()
		drainLines(stderr, func(line string) {
			s.logger.Error(tag+":stderr", logging.String("line", line))
		})
	}()

	return h, nil
}

// RunWithDeadline spawns the command and waits up to timeout for it to
// exit. The subprocess's exit code is returned on completion, including
// non-zero codes, with a nil error. On expiry the process group is
// force-killed and ErrTimeout is returned.
func (s *Shell) RunWithDeadline(command string, opts Options, timeout time.Duration) (int, error) {
	h, err := s.Run(command, opts)
	if err != nil {
		return 0, err
	}

	done := make(chan struct{})
	go func() {
		h.wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return h.exitCode, h.spawnFailure()
	case <-timer.C:
		s.logger.Error("command timed out",
			logging.String("command", command),
			logging.Duration("timeout", timeout))
		h.Kill()
		<-done
		return 0, ErrTimeout
	}
}

// Wait blocks until the process exits and all output is drained, then
// returns its exit code.
func (h *Handle) Wait() (int, error) {
	h.wait()
	return h.exitCode, h.spawnFailure()
}

// Kill force-terminates the process group.
func (h *Handle) Kill() {
	if h.cmd.Process == nil {
		return
	}
	// Negative pid signals the whole group.
	_ = unix.Kill(-h.cmd.Process.Pid, unix.SIGKILL)
}

func (h *Handle) wait() {
	h.waitOnce.Do(func() {
		h.drains.Wait()
		err := h.cmd.Wait()
		h.exitCode = h.cmd.ProcessState.ExitCode()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			h.waitErr = err
		}
	})
}

// spawnFailure reports wait errors other than a non-zero exit status.
func (h *Handle) spawnFailure() error {
	if h.waitErr != nil {
		return fmt.Errorf("wait command: %w", h.waitErr)
	}
	return nil
}

func drainLines(r io.Reader, forward func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		forward(scanner.Text())
	}
}
