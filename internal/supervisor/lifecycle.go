package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mattjoyce/taskwarden/internal/events"
	"github.com/mattjoyce/taskwarden/internal/logsink"
	"github.com/mattjoyce/taskwarden/internal/protocol"
)

// WorkerState is the worker handle lifecycle.
type WorkerState string

const (
	StateAbsent     WorkerState = "absent"
	StateStarting   WorkerState = "starting"
	StateRunning    WorkerState = "running"
	StateRestarting WorkerState = "restarting"
	StateCooledDown WorkerState = "cooled-down"
	StateTerminated WorkerState = "terminated"
)

// workerProc is the live child process plus its transport endpoints.
type workerProc struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	enc        *protocol.Encoder
	pid        int
	generation int
}

// terminate closes the dispatch stream (orderly EOF shutdown for the
// worker) and signals the process. It does not wait.
func (p *workerProc) terminate() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}
}

// setStateLocked records a lifecycle transition. Caller holds s.mu.
func (s *Supervisor) setStateLocked(next WorkerState) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next

	pid := 0
	if s.proc != nil {
		pid = s.proc.pid
	}
	s.logger.Info("worker state changed", "from", string(prev), "to", string(next), "pid", pid)
	s.sinkLine("INFO", fmt.Sprintf("worker state %s -> %s (pid %d)", prev, next, pid))
	s.publish(events.KindWorkerState, map[string]any{"from": string(prev), "to": string(next), "pid": pid})
}

// workerCommand resolves the worker command line: the configured override,
// or this binary re-executed in worker mode.
func (s *Supervisor) workerCommand() (string, []string, error) {
	if len(s.cfg.Command) > 0 {
		return s.cfg.Command[0], s.cfg.Command[1:], nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve own executable: %w", err)
	}
	return self, []string{"worker"}, nil
}

// spawnLocked starts a new worker process and wires its pipes. Caller
// holds s.mu. On success the handle is starting; running follows only
// after the worker-ready handshake arrives.
func (s *Supervisor) spawnLocked() error {
	name, args, err := s.workerCommand()
	if err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TASKWARDEN_COMMAND_TIMEOUT=%s", s.cfg.CommandTimeout),
		fmt.Sprintf("TASKWARDEN_MAX_OUTPUT_BYTES=%d", s.cfg.MaxOutputBytes),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker process: %w", err)
	}

	s.generation++
	gen := s.generation
	s.proc = &workerProc{
		cmd:        cmd,
		stdin:      stdin,
		enc:        protocol.NewEncoder(stdin),
		pid:        cmd.Process.Pid,
		generation: gen,
	}
	s.setStateLocked(StateStarting)
	s.publish(events.KindWorkerSpawned, map[string]any{"pid": cmd.Process.Pid, "attempt": s.attempts})

	go s.readLoop(gen, cmd.Process.Pid, stdout)
	go s.stderrLoop(cmd.Process.Pid, stderr)
	go s.waitLoop(gen, cmd)

	return nil
}

// readLoop consumes the worker's stdout message stream for one process
// generation. It ends when the stream closes or breaks; process death
// itself is handled by waitLoop.
func (s *Supervisor) readLoop(gen, pid int, r io.Reader) {
	dec := protocol.NewDecoder(r)
	for {
		env, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, protocol.ErrUnknownType) {
			s.logger.Warn("dropping message from worker", "pid", pid, "error", err)
			continue
		}
		if err != nil {
			s.logger.Error("worker message stream broken", "pid", pid, "error", err)
			return
		}

		s.sinkLine("DEBUG", fmt.Sprintf("worker message type=%s id=%s (pid %d)", env.Type, env.TaskID, pid))

		if env.Type == protocol.TypeWorkerReady {
			s.markRunning(gen)
			continue
		}
		if !env.IsReply() {
			s.logger.Warn("ignoring non-reply message from worker", "pid", pid, "type", env.Type)
			continue
		}
		if env.Type == protocol.TypeTaskError {
			code := env.Code
			if code == 0 {
				code = protocol.DefaultErrorCode
			}
			s.resolve(env.TaskID, failureResult(env.Error, code))
			continue
		}
		s.resolve(env.TaskID, successResult(env.Result))
	}
}

// stderrLoop mirrors the worker's stderr into the session log, line by
// line, tagged with the worker pid.
func (s *Supervisor) stderrLoop(pid int, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			if err := s.sink.Append(logsink.RoleWorker, pid, "INFO", line); err != nil {
				s.logger.Error("session log write failed", "error", err)
				return
			}
		}
	}
}

// markRunning completes the starting -> running transition after the ready
// handshake and clears the restart attempt budget: once the worker
// stabilizes, transient failures no longer count against it.
func (s *Supervisor) markRunning(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.proc == nil || s.proc.generation != gen {
		return
	}
	s.attempts = 0
	s.setStateLocked(StateRunning)
}

// waitLoop reaps one process generation and feeds its exit into the
// restart policy.
func (s *Supervisor) waitLoop(gen int, cmd *exec.Cmd) {
	err := cmd.Wait()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	s.onWorkerExit(gen, cmd.Process.Pid, exitCode)
}

// onWorkerExit applies the restart policy for one observed exit.
func (s *Supervisor) onWorkerExit(gen, pid, exitCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil || s.proc.generation != gen {
		return
	}
	s.proc = nil

	s.logger.Warn("worker exited", "pid", pid, "exit_code", exitCode)
	s.sinkLine("WARN", fmt.Sprintf("worker exited (pid %d, code %d)", pid, exitCode))
	s.publish(events.KindWorkerExited, map[string]any{"pid": pid, "exit_code": exitCode})

	if s.disposed || s.state == StateCooledDown || s.state == StateTerminated {
		return
	}
	if exitCode == 0 {
		// Orderly exit outside Dispose still leaves us without a worker;
		// treat it like a crash so availability recovers.
		s.logger.Warn("worker exited cleanly outside disposal, restarting")
	}

	// Outstanding requests are left to resolve via their timeout timers;
	// a crash is never surfaced to individual callers directly.
	s.scheduleRestartLocked()
}

// scheduleRestartLocked consumes one restart attempt and arms the backoff
// timer, or enters cooldown once the budget is exhausted. Caller holds s.mu.
func (s *Supervisor) scheduleRestartLocked() {
	s.attempts++
	if s.attempts > s.cfg.Restart.MaxAttempts {
		s.logger.Error("restart budget exhausted, entering cooldown", "attempts", s.cfg.Restart.MaxAttempts)
		s.setStateLocked(StateCooledDown)
		return
	}

	delay := time.Duration(s.attempts) * s.cfg.Restart.BackoffStep
	if delay > s.cfg.Restart.BackoffCap {
		delay = s.cfg.Restart.BackoffCap
	}

	s.logger.Info("scheduling worker restart", "attempt", s.attempts, "delay", delay)
	s.setStateLocked(StateRestarting)
	s.restart = time.AfterFunc(delay, s.attemptRestart)
}

// attemptRestart fires after the backoff delay and tries to spawn again. A
// spawn failure counts as another consumed attempt.
func (s *Supervisor) attemptRestart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed || s.state == StateCooledDown || s.state == StateTerminated {
		return
	}

	if err := s.spawnLocked(); err != nil {
		s.logger.Error("worker restart failed", "attempt", s.attempts, "error", err)
		s.sinkLine("ERROR", fmt.Sprintf("worker restart failed (attempt %d): %v", s.attempts, err))
		s.scheduleRestartLocked()
	}
}
