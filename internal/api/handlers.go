package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/taskwarden/internal/supervisor"
)

// maxExecuteBodyBytes bounds the execute request body; task args are small.
const maxExecuteBodyBytes = 256 * 1024

// executeRequest is the POST /v1/tasks/{name} body.
type executeRequest struct {
	Args []any `json:"args"`
	// TimeoutSeconds overrides the supervisor-side wait for this call.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "task name is required")
		return
	}

	var req executeRequest
	body := http.MaxBytesReader(w, r.Body, maxExecuteBodyBytes)
	// An empty body means no args and the default wait.
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var opts supervisor.Options
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	res := s.exec.ExecuteWithOptions(r.Context(), name, opts, req.Args...)

	status := http.StatusOK
	if !res.Success {
		switch res.Code {
		case supervisor.CodeUnavailable:
			status = http.StatusServiceUnavailable
		case supervisor.CodeTimeout:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusBadGateway
		}
	}
	s.writeJSON(w, status, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"available":    s.exec.IsAvailable(),
		"worker_state": string(s.exec.State()),
		"log_file":     s.exec.LogFilePath(),
		"uptime_s":     int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	lines, err := s.exec.RecentLogs(n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read logs: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "task history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read history: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"available": s.exec.IsAvailable(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
