package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutForwardsToAllHandlers(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(Fanout(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	))

	logger.Info("worker spawned", "pid", 42)

	assert.Contains(t, a.String(), "worker spawned")
	assert.Contains(t, a.String(), "pid=42")
	assert.Contains(t, b.String(), "worker spawned")
}

func TestFanoutRespectsPerHandlerLevels(t *testing.T) {
	var all, warnOnly bytes.Buffer
	logger := slog.New(Fanout(
		slog.NewTextHandler(&all, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warnOnly, &slog.HandlerOptions{Level: slog.LevelWarn}),
	))

	logger.Info("routine")
	logger.Warn("worker exited")

	assert.Contains(t, all.String(), "routine")
	assert.Contains(t, all.String(), "worker exited")
	assert.NotContains(t, warnOnly.String(), "routine")
	assert.Contains(t, warnOnly.String(), "worker exited")
}

func TestFanoutWithAttrsAppliesEverywhere(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(Fanout(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	)).With("component", "api")

	logger.Info("http request")

	require.Contains(t, a.String(), "component=api")
	require.Contains(t, b.String(), "component=api")
}
