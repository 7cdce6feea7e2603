package cmdrunner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsTrimmedStdout(t *testing.T) {
	var r Runner
	out, err := r.Run(context.Background(), "printf '  hello world \\n'", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRunRejectsEmptyCommandLine(t *testing.T) {
	var r Runner
	_, err := r.Run(context.Background(), "   ", Options{})
	assert.Error(t, err)
}

func TestRunNonZeroExitIncludesStderr(t *testing.T) {
	var r Runner
	_, err := r.Run(context.Background(), "echo broken pipe >&2; exit 3", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit 3")
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestRunTimeout(t *testing.T) {
	var r Runner
	start := time.Now()
	_, err := r.Run(context.Background(), "sleep 30", Options{Timeout: 100 * time.Millisecond})
	require.ErrorIs(t, err, ErrTimeout)
	// SIGTERM kills the sleep, so the grace period never runs its course.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunContextCancel(t *testing.T) {
	var r Runner
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, "sleep 30", Options{Timeout: 10 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunOutputOverflow(t *testing.T) {
	var r Runner
	_, err := r.Run(context.Background(), "head -c 4096 /dev/zero", Options{MaxOutputBytes: 1024})
	assert.ErrorIs(t, err, ErrOutputOverflow)
}

func TestRunOverflowCountsStderrToo(t *testing.T) {
	var r Runner
	_, err := r.Run(context.Background(), "head -c 600 /dev/zero; head -c 600 /dev/zero >&2", Options{MaxOutputBytes: 1024})
	assert.ErrorIs(t, err, ErrOutputOverflow)
}

func TestRunnerDefaultsApplyWhenOptionsZero(t *testing.T) {
	r := Runner{DefaultTimeout: 100 * time.Millisecond, DefaultMaxOutputBytes: 64}

	_, err := r.Run(context.Background(), "sleep 30", Options{})
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = r.Run(context.Background(), "head -c 128 /dev/zero", Options{})
	assert.ErrorIs(t, err, ErrOutputOverflow)

	// Per-call options still win over runner defaults.
	out, err := r.Run(context.Background(), "echo ok", Options{Timeout: time.Second, MaxOutputBytes: 4096})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestRunCustomShell(t *testing.T) {
	r := Runner{Shell: []string{"/bin/bash", "-c"}}
	out, err := r.Run(context.Background(), "echo ${BASH_VERSION:+bash}", Options{})
	require.NoError(t, err)
	assert.Equal(t, "bash", strings.TrimSpace(out))
}
