// Package history persists a row per dispatched task for post-hoc
// inspection, independent of the session text log.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Statuses a recorded run can end in. They mirror the supervisor's result
// taxonomy, not the worker's internals.
const (
	StatusSucceeded   = "succeeded"
	StatusFailed      = "failed"
	StatusTimedOut    = "timed_out"
	StatusUnavailable = "unavailable"
	StatusShutdown    = "shutdown"
)

// Run is one completed dispatch.
type Run struct {
	ID          string
	TaskID      string
	Task        string
	Args        []any
	Status      string
	Result      string
	Error       string
	Code        int
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Store writes and reads task_runs.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one completed run.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.Task == "" {
		return fmt.Errorf("task name is empty")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	var argsJSON any
	if len(run.Args) > 0 {
		b, err := json.Marshal(run.Args)
		if err != nil {
			return fmt.Errorf("marshal args: %w", err)
		}
		argsJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_runs(
  id, task_id, task, args, status, result, error, code,
  started_at, completed_at, duration_ms
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		run.ID, run.TaskID, run.Task, argsJSON, run.Status,
		nullable(run.Result), nullable(run.Error), run.Code,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.CompletedAt.UTC().Format(time.RFC3339Nano),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, task_id, task, args, status, result, error, code,
       started_at, completed_at, duration_ms
FROM task_runs
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r          Run
			argsS      sql.NullString
			resultS    sql.NullString
			errorS     sql.NullString
			startedS   string
			completedS string
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Task, &argsS, &r.Status, &resultS, &errorS, &r.Code,
			&startedS, &completedS, &durationMS); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		if argsS.Valid {
			_ = json.Unmarshal([]byte(argsS.String), &r.Args)
		}
		if resultS.Valid {
			r.Result = resultS.String
		}
		if errorS.Valid {
			r.Error = errorS.String
		}
		if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedS); err == nil {
			r.CompletedAt = t
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task runs: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
