// Package logsink implements the append-only session log file shared by the
// supervisor and the worker's captured stderr. One file per supervisor
// session, plain text, single writer, never rotated mid-session.
package logsink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles tag which process a line originated from.
const (
	RoleSupervisor = "SUPERVISOR"
	RoleWorker     = "WORKER"
)

// Sink is the session log. Append is safe for concurrent use within one
// process; concurrent writer processes are not supported.
type Sink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// New creates a fresh session log file under dir, named with a session id
// so successive supervisor sessions never collide.
func New(dir string) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	session := uuid.NewString()
	path := filepath.Join(dir, fmt.Sprintf("taskwarden-%s.log", session))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create session log: %w", err)
	}

	return &Sink{path: path, f: f}, nil
}

// Open attaches to an existing log file for read-only use (Tail). Append on
// a Sink returned by Open fails.
func Open(path string) (*Sink, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Sink{path: path}, nil
}

// Path returns the session log file path.
func (s *Sink) Path() string {
	return s.path
}

// Append writes one formatted line:
//
//	[ISO-timestamp] [ROLE PID:n] [LEVEL] message
//
// Embedded newlines in msg are flattened so every record stays one line.
func (s *Sink) Append(role string, pid int, level, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("session log %s is not open for writing", s.path)
	}

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	msg = strings.ReplaceAll(strings.TrimRight(msg, "\n"), "\n", " | ")
	_, err := fmt.Fprintf(s.f, "[%s] [%s PID:%d] [%s] %s\n", ts, role, pid, strings.ToUpper(level), msg)
	if err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	return nil
}

// Tail returns at most the last n non-empty lines in file order (oldest to
// newest of the retained window). n <= 0 returns nil.
func (s *Sink) Tail(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}
	defer f.Close()

	// Session logs are bounded by session length; a full scan keeps the
	// slicing semantics simple.
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan session log: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Close closes the underlying file. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
