// Package worker implements the isolated child process that executes task
// handlers. It speaks the protocol over stdin/stdout and treats any failure
// outside a handler as fatal; the supervisor owns recovery via restart.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattjoyce/taskwarden/internal/protocol"
	"github.com/mattjoyce/taskwarden/internal/tasks"
)

// Worker reads execute-task messages, dispatches to the registry, and emits
// exactly one reply per request. Handlers run concurrently without a queue
// or cap; that is a documented simplicity trade-off, not an isolation
// guarantee.
type Worker struct {
	registry *tasks.Registry
	logger   *slog.Logger
}

// New creates a Worker over the given registry.
func New(registry *tasks.Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{registry: registry, logger: logger}
}

// Run drives the dispatch loop until stdin closes (orderly shutdown, nil
// return), the context is cancelled, or the stream breaks (error return;
// the process should exit non-zero, fail-fast).
//
// It first emits the worker-ready handshake: the supervisor's signal that
// IPC is established and dispatch may begin.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	enc := protocol.NewEncoder(out)
	dec := protocol.NewDecoder(in)

	if err := enc.Encode(protocol.Ready(os.Getpid())); err != nil {
		return fmt.Errorf("send ready handshake: %w", err)
	}
	w.logger.Info("worker ready", "pid", os.Getpid(), "tasks", len(w.registry.Names()))

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		env, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			w.logger.Info("input stream closed, shutting down")
			return nil
		}
		if errors.Is(err, protocol.ErrUnknownType) {
			w.logger.Warn("ignoring message", "error", err)
			continue
		}
		if err != nil {
			// A corrupt stream after the handshake means the channel is
			// unusable. Fail fast; the supervisor restarts us.
			return fmt.Errorf("read dispatch stream: %w", err)
		}

		if env.Type != protocol.TypeExecuteTask {
			w.logger.Warn("ignoring non-dispatch message", "type", env.Type)
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		inflight.Add(1)
		go func(env protocol.Envelope) {
			defer inflight.Done()
			w.dispatch(ctx, enc, env)
		}(env)
	}
}

// dispatch runs one task and emits its single terminal reply.
func (w *Worker) dispatch(ctx context.Context, enc *protocol.Encoder, env protocol.Envelope) {
	logger := w.logger.With("task", env.TaskName, "task_id", env.TaskID)

	desc, ok := w.registry.Lookup(env.TaskName)
	if !ok {
		logger.Warn("unknown task requested")
		w.reply(enc, protocol.Failure(env.TaskID, fmt.Sprintf("unknown task %q", env.TaskName), protocol.DefaultErrorCode))
		return
	}

	logger.Info("task started", "args", len(env.Args))
	result, err := desc.Handler(ctx, env.Args)
	if err != nil {
		logger.Warn("task failed", "error", err)
		w.reply(enc, protocol.Failure(env.TaskID, err.Error(), protocol.DefaultErrorCode))
		return
	}

	logger.Info("task completed")
	w.reply(enc, protocol.Complete(env.TaskID, result))
}

// reply writes one terminal message. A broken stdout means no reply can
// ever be delivered again, so the worker dies rather than limp along.
func (w *Worker) reply(enc *protocol.Encoder, env protocol.Envelope) {
	if err := enc.Encode(env); err != nil {
		w.logger.Error("reply stream broken, exiting", "error", err)
		os.Exit(1)
	}
}
