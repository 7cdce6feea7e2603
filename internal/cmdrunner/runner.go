// Package cmdrunner executes a single shell command with a timeout and an
// output cap. It runs worker-side, invoked by task handlers; it never
// retries and never interprets exit codes beyond failure.
package cmdrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultTimeout bounds a single command run.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps captured stdout plus stderr.
	DefaultMaxOutputBytes = 10 << 20 // 10 MiB

	// terminationGracePeriod is the time between SIGTERM and SIGKILL when a
	// command exceeds its timeout.
	terminationGracePeriod = 5 * time.Second

	// stderrTailBytes is how much trailing stderr is folded into error text.
	stderrTailBytes = 2048
)

// Sentinel failures callers branch on with errors.Is.
var (
	ErrTimeout        = errors.New("command timed out")
	ErrOutputOverflow = errors.New("command output exceeded limit")
)

// Options tune a single run. Zero values take the defaults.
type Options struct {
	Timeout        time.Duration
	MaxOutputBytes int64
}

// Runner executes shell command lines. The zero value is usable.
type Runner struct {
	// Shell overrides the interpreter, mainly for tests. Defaults to
	// "sh" "-c".
	Shell []string

	// DefaultTimeout and DefaultMaxOutputBytes apply when a call's
	// Options leave them zero. Zero here falls back to the package
	// defaults.
	DefaultTimeout        time.Duration
	DefaultMaxOutputBytes int64
}

// Run executes commandLine via the shell and returns trimmed stdout.
// It fails if the command exceeds its timeout, overflows the output cap,
// fails to start, or exits non-zero.
func (r *Runner) Run(ctx context.Context, commandLine string, opts Options) (string, error) {
	if strings.TrimSpace(commandLine) == "" {
		return "", fmt.Errorf("command line is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = r.DefaultTimeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = r.DefaultMaxOutputBytes
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}

	shell := r.Shell
	if len(shell) == 0 {
		shell = []string{"sh", "-c"}
	}

	cmd := exec.Command(shell[0], append(shell[1:], commandLine)...)

	budget := &outputBudget{remaining: opts.MaxOutputBytes}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = budget.writer(&stdout)
	cmd.Stderr = budget.writer(&stderr)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start command: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timeout := time.NewTimer(opts.Timeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		terminate(cmd, waitErr)
		return "", fmt.Errorf("command aborted: %w", ctx.Err())

	case <-timeout.C:
		terminate(cmd, waitErr)
		return "", fmt.Errorf("%w after %v: %s", ErrTimeout, opts.Timeout, commandLine)

	case err := <-waitErr:
		if budget.exceeded() {
			return "", fmt.Errorf("%w (%d bytes): %s", ErrOutputOverflow, opts.MaxOutputBytes, commandLine)
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return "", fmt.Errorf("command failed (exit %d): %s", exitErr.ExitCode(), tail(stderr.String(), stderrTailBytes))
			}
			return "", fmt.Errorf("wait for command: %w", err)
		}
		return strings.TrimSpace(stdout.String()), nil
	}
}

// terminate sends SIGTERM, waits out the grace period, then SIGKILLs.
func terminate(cmd *exec.Cmd, waitErr <-chan error) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
	case <-grace.C:
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-waitErr
	}
}

// outputBudget enforces a combined stdout+stderr cap. Writes past the cap
// report an error so the shell's pipe breaks and the command dies instead
// of filling memory.
type outputBudget struct {
	mu        sync.Mutex
	remaining int64
	overflow  bool
}

func (b *outputBudget) writer(dst *bytes.Buffer) *cappedWriter {
	return &cappedWriter{budget: b, dst: dst}
}

func (b *outputBudget) exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}

type cappedWriter struct {
	budget *outputBudget
	dst    *bytes.Buffer
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	b := w.budget
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow {
		return 0, ErrOutputOverflow
	}
	if int64(len(p)) > b.remaining {
		b.overflow = true
		w.dst.Write(p[:b.remaining])
		b.remaining = 0
		return 0, ErrOutputOverflow
	}
	b.remaining -= int64(len(p))
	return w.dst.Write(p)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	if s == "" {
		return "(no stderr)"
	}
	return s
}
