// Package supervisor owns the worker process lifecycle, the outstanding
// request table, the restart policy, and the session log. It is the only
// component allowed to touch any of them.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattjoyce/taskwarden/internal/config"
	"github.com/mattjoyce/taskwarden/internal/events"
	"github.com/mattjoyce/taskwarden/internal/history"
	"github.com/mattjoyce/taskwarden/internal/log"
	"github.com/mattjoyce/taskwarden/internal/logsink"
	"github.com/mattjoyce/taskwarden/internal/protocol"
	"github.com/mattjoyce/taskwarden/internal/tasks"
)

// Options tune a single Execute call.
type Options struct {
	// Timeout overrides the per-task supervisor wait. Zero keeps the
	// catalog override (300s for package operations) or, absent one, the
	// configured default.
	Timeout time.Duration
}

// pendingRequest correlates one dispatched task with its eventual
// resolution. Owned exclusively by the Supervisor; destroyed on reply,
// timeout, or dispose — whichever wins.
type pendingRequest struct {
	id        string
	task      string
	args      []any
	ch        chan TaskResult // buffered 1; written exactly once by resolve
	timer     *time.Timer
	createdAt time.Time
}

// Supervisor dispatches tasks to a single worker process and recovers from
// its crashes. One instance per process lifetime; construct it in an
// application root and inject it into consumers.
type Supervisor struct {
	cfg    config.WorkerConfig
	sink   *logsink.Sink
	hub    *events.Hub    // optional
	hist   *history.Store // optional
	hints  *tasks.Registry
	logger *slog.Logger

	mu         sync.Mutex
	state      WorkerState
	proc       *workerProc
	pending    map[string]*pendingRequest
	seq        uint64
	attempts   int
	generation int
	disposed   bool
	restart    *time.Timer
}

// New constructs the supervisor and spawns the worker. A spawn failure at
// construction is logged and leaves the handle absent; the supervisor is
// still returned so callers get uniform unavailable results, not errors.
func New(cfg config.WorkerConfig, sink *logsink.Sink, hub *events.Hub, hist *history.Store) *Supervisor {
	s := &Supervisor{
		cfg:  cfg,
		sink: sink,
		hub:  hub,
		hist: hist,
		// Handlers never run supervisor-side; the registry is consulted
		// only for per-task wait hints.
		hints:   tasks.NewRegistry(nil),
		logger:  log.WithComponent("supervisor"),
		state:   StateAbsent,
		pending: make(map[string]*pendingRequest),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.spawnLocked(); err != nil {
		s.logger.Error("initial worker spawn failed", "error", err)
		s.sinkLine("ERROR", fmt.Sprintf("initial worker spawn failed: %v", err))
		s.setStateLocked(StateAbsent)
	}
	return s
}

// Execute dispatches a task with the catalog's default wait.
func (s *Supervisor) Execute(ctx context.Context, name string, args ...any) TaskResult {
	return s.ExecuteWithOptions(ctx, name, Options{}, args...)
}

// ExecuteWithOptions dispatches a task and blocks until exactly one of:
// the worker's reply, the timeout, disposal, or ctx cancellation. Business
// failures come back as a failed TaskResult, never as a panic or error.
func (s *Supervisor) ExecuteWithOptions(ctx context.Context, name string, opts Options, args ...any) TaskResult {
	if name == "" {
		return failureResult("task name is empty", protocol.DefaultErrorCode)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.hints.WaitTimeout(name)
	}
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = tasks.DefaultWaitTimeout
	}

	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		if state == StateCooledDown {
			return failureResult(fmt.Sprintf(
				"worker unavailable: in cooldown after %d failed restart attempts", s.cfg.Restart.MaxAttempts), CodeUnavailable)
		}
		return failureResult(fmt.Sprintf("worker unavailable (state: %s)", state), CodeUnavailable)
	}

	s.seq++
	id := fmt.Sprintf("t%d-%d", s.seq, time.Now().UnixMilli())
	p := &pendingRequest{
		id:        id,
		task:      name,
		args:      args,
		ch:        make(chan TaskResult, 1),
		createdAt: time.Now(),
	}
	s.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		s.resolve(id, failureResult(fmt.Sprintf(
			"task %s timed out after %v (worker may still be executing)", name, timeout), CodeTimeout))
	})

	enc := s.proc.enc
	pid := s.proc.pid
	s.mu.Unlock()

	s.sinkLine("INFO", fmt.Sprintf("dispatch %s id=%s timeout=%v", name, id, timeout))
	s.publish(events.KindTaskDispatch, map[string]any{"task": name, "task_id": id})

	if err := enc.Encode(protocol.Execute(id, name, args)); err != nil {
		s.logger.Error("dispatch write failed", "task", name, "task_id", id, "pid", pid, "error", err)
		s.resolve(id, failureResult(fmt.Sprintf("worker unavailable: dispatch failed: %v", err), CodeUnavailable))
	}

	select {
	case res := <-p.ch:
		return res
	case <-ctx.Done():
		// Abandon the wait; the worker keeps executing (no in-flight
		// cancellation exists in this design).
		s.resolve(id, failureResult(fmt.Sprintf("execute abandoned: %v", ctx.Err()), CodeShutdown))
		return <-p.ch
	}
}

// resolve delivers the single terminal resolution for id. Late or unknown
// ids are discarded without error; the first resolution always wins.
func (s *Supervisor) resolve(id string, res TaskResult) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("discarding resolution for unknown or settled request", "task_id", id)
		return
	}
	delete(s.pending, id)
	p.timer.Stop()
	s.mu.Unlock()

	p.ch <- res
	s.finishRequest(p, res)
}

// finishRequest handles the bookkeeping that follows a resolution: session
// log, event feed, and the history row.
func (s *Supervisor) finishRequest(p *pendingRequest, res TaskResult) {
	completed := time.Now()

	if res.Success {
		s.sinkLine("INFO", fmt.Sprintf("task %s id=%s succeeded in %v", p.task, p.id, completed.Sub(p.createdAt).Round(time.Millisecond)))
		s.publish(events.KindTaskComplete, map[string]any{"task": p.task, "task_id": p.id})
	} else {
		s.sinkLine("WARN", fmt.Sprintf("task %s id=%s failed (code %d): %s", p.task, p.id, res.Code, res.Error))
		s.publish(events.KindTaskFailed, map[string]any{"task": p.task, "task_id": p.id, "error": res.Error, "code": res.Code})
	}

	if s.hist == nil {
		return
	}

	run := history.Run{
		TaskID:      p.id,
		Task:        p.task,
		Args:        p.args,
		Status:      statusFor(res),
		Code:        res.Code,
		StartedAt:   p.createdAt,
		CompletedAt: completed,
		Duration:    completed.Sub(p.createdAt),
	}
	if res.Success {
		run.Result = fmt.Sprintf("%v", res.Data)
	} else {
		run.Error = res.Error
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.hist.Record(ctx, run); err != nil {
		s.logger.Error("record task history failed", "task_id", p.id, "error", err)
	}
}

func statusFor(res TaskResult) string {
	switch {
	case res.Success:
		return history.StatusSucceeded
	case res.Code == CodeTimeout:
		return history.StatusTimedOut
	case res.Code == CodeUnavailable:
		return history.StatusUnavailable
	case res.Code == CodeShutdown:
		return history.StatusShutdown
	default:
		return history.StatusFailed
	}
}

// IsAvailable reports whether the worker can accept dispatches right now.
func (s *Supervisor) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// State returns the current worker handle state.
func (s *Supervisor) State() WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecentLogs returns at most the last n non-empty session log lines,
// oldest to newest.
func (s *Supervisor) RecentLogs(n int) ([]string, error) {
	return s.sink.Tail(n)
}

// LogFilePath returns the session log file path.
func (s *Supervisor) LogFilePath() string {
	return s.sink.Path()
}

// Dispose resolves every outstanding request with a shutdown failure,
// cancels their timers, and terminates the worker. Idempotent.
func (s *Supervisor) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}

	outstanding := make([]*pendingRequest, 0, len(s.pending))
	for id, p := range s.pending {
		delete(s.pending, id)
		p.timer.Stop()
		outstanding = append(outstanding, p)
	}

	proc := s.proc
	s.proc = nil
	s.setStateLocked(StateTerminated)
	s.mu.Unlock()

	for _, p := range outstanding {
		res := failureResult("supervisor disposed before task completed", CodeShutdown)
		p.ch <- res
		s.finishRequest(p, res)
	}

	if proc != nil {
		proc.terminate()
	}
	s.sinkLine("INFO", "supervisor disposed")
}

// sinkLine appends one supervisor-role line to the session log.
func (s *Supervisor) sinkLine(level, msg string) {
	if err := s.sink.Append(logsink.RoleSupervisor, os.Getpid(), level, msg); err != nil {
		s.logger.Error("session log write failed", "error", err)
	}
}

func (s *Supervisor) publish(kind string, data any) {
	if s.hub != nil {
		s.hub.Publish(kind, data)
	}
}
