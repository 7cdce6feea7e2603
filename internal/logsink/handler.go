package logsink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Handler is a slog.Handler that mirrors records into the session log so
// structured supervisor logging and the post-hoc text log stay in step.
type Handler struct {
	sink  *Sink
	role  string
	level slog.Level
	attrs []slog.Attr
}

// NewHandler wraps sink as a slog handler for the given role.
func NewHandler(sink *Sink, role string, level slog.Level) *Handler {
	return &Handler{sink: sink, role: role, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)

	appendAttr := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(appendAttr)

	return h.sink.Append(h.role, os.Getpid(), rec.Level.String(), b.String())
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *Handler) WithGroup(string) slog.Handler {
	// Groups are not used in the session log format.
	return h
}
