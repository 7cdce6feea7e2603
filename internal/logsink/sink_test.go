package logsink

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineFormat = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T[0-9:.]+Z\] \[(SUPERVISOR|WORKER) PID:\d+\] \[[A-Z]+\] .+$`)

func TestAppendFormatsOneLinePerRecord(t *testing.T) {
	sink, err := New(t.TempDir())
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(RoleSupervisor, 100, "info", "worker state absent -> starting (pid 200)"))
	require.NoError(t, sink.Append(RoleWorker, 200, "INFO", "first\nsecond\n"))

	lines, err := sink.Tail(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	for _, line := range lines {
		assert.Regexp(t, lineFormat, line)
	}
	assert.Contains(t, lines[0], "[SUPERVISOR PID:100] [INFO]")
	assert.Contains(t, lines[1], "first | second", "embedded newlines must be flattened")
}

func TestTailReturnsNewestWindowInFileOrder(t *testing.T) {
	sink, err := New(t.TempDir())
	require.NoError(t, err)
	defer sink.Close()

	for _, msg := range []string{"one", "two", "three", "four"} {
		require.NoError(t, sink.Append(RoleSupervisor, 1, "INFO", msg))
	}

	lines, err := sink.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "three"))
	assert.True(t, strings.HasSuffix(lines[1], "four"))

	lines, err = sink.Tail(100)
	require.NoError(t, err)
	assert.Len(t, lines, 4)

	lines, err = sink.Tail(0)
	require.NoError(t, err)
	assert.Nil(t, lines)
}

func TestTailSkipsBlankLines(t *testing.T) {
	sink, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, sink.Append(RoleSupervisor, 1, "INFO", "only"))
	require.NoError(t, sink.Close())

	f, err := os.OpenFile(sink.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines, err := sink.Tail(10)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestSessionFilesDoNotCollide(t *testing.T) {
	dir := t.TempDir()

	a, err := New(dir)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.Path(), b.Path())
	assert.Equal(t, dir, filepath.Dir(a.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(a.Path()), "taskwarden-"))
}

func TestOpenIsReadOnly(t *testing.T) {
	orig, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, orig.Append(RoleSupervisor, 1, "INFO", "hello"))
	require.NoError(t, orig.Close())

	reader, err := Open(orig.Path())
	require.NoError(t, err)

	lines, err := reader.Tail(10)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	err = reader.Append(RoleSupervisor, 1, "INFO", "nope")
	assert.Error(t, err)
}

func TestOpenMissingFileFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}

func TestCloseIsIdempotentAndAppendAfterCloseFails(t *testing.T) {
	sink, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Append(RoleSupervisor, 1, "INFO", "late"))
}
