// Package execx spawns and supervises the subprocesses that drive the
// tracing daemon.
//
// Commands run through `sh -c` so heredoc-delivered configuration and
// shell redirection work as written. Stdout and stderr are drained on
// dedicated goroutines from the moment a process starts, so the child
// can never block on a full pipe; stderr always reaches the log, stdout
// only on request or into a caller-supplied writer. Deadline-bounded
// runs force-kill the whole process group on expiry and report
// ErrTimeout instead of a result.
package execx
