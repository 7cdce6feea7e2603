package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskwarden/internal/config"
)

func TestResolveLogFileExplicitWins(t *testing.T) {
	cfg := config.Defaults()
	path, err := resolveLogFile(cfg, "/tmp/some.log")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/some.log", path)
}

func TestResolveLogFilePicksNewestSession(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Service.LogDir = dir

	older := filepath.Join(dir, "taskwarden-aaa.log")
	newer := filepath.Join(dir, "taskwarden-bbb.log")
	require.NoError(t, os.WriteFile(older, []byte("old\n"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("new\n"), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	path, err := resolveLogFile(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, newer, path)
}

func TestResolveLogFileEmptyDirectory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Service.LogDir = t.TempDir()

	_, err := resolveLogFile(cfg, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session logs")
}

func TestLoadConfigDefaultsWithoutPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "taskwarden", cfg.Service.Name)
}
