package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskwarden/internal/api/mocks"
	"github.com/mattjoyce/taskwarden/internal/events"
	"github.com/mattjoyce/taskwarden/internal/supervisor"
)

const testAPIKey = "test-key-123"

func newTestServer(t *testing.T) (*Server, *mocks.MockTaskExecutor) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	exec := mocks.NewMockTaskExecutor(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{Listen: "127.0.0.1:0", APIKey: testAPIKey}, exec, nil, events.NewHub(16), logger)
	return srv, exec
}

func doRequest(t *testing.T, srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestExecuteSuccess(t *testing.T) {
	srv, exec := newTestServer(t)

	exec.EXPECT().
		ExecuteWithOptions(gomock.Any(), "manage-service", supervisor.Options{}, "nginx", "restart").
		Return(supervisor.TaskResult{Success: true, Data: "Service nginx restart completed"})

	rec := doRequest(t, srv, http.MethodPost, "/v1/tasks/manage-service",
		`{"args":["nginx","restart"]}`, testAPIKey)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), "Service nginx restart completed")
}

func TestExecuteEmptyBodyMeansNoArgs(t *testing.T) {
	srv, exec := newTestServer(t)

	exec.EXPECT().
		ExecuteWithOptions(gomock.Any(), "system-info", supervisor.Options{}).
		Return(supervisor.TaskResult{Success: true, Data: "Linux"})

	rec := doRequest(t, srv, http.MethodPost, "/v1/tasks/system-info", "", testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteTimeoutOverride(t *testing.T) {
	srv, exec := newTestServer(t)

	exec.EXPECT().
		ExecuteWithOptions(gomock.Any(), "install-package", gomock.Any(), "htop").
		DoAndReturn(func(_ context.Context, _ string, opts supervisor.Options, _ ...any) supervisor.TaskResult {
			assert.Equal(t, "1m0s", opts.Timeout.String())
			return supervisor.TaskResult{Success: true, Data: "Package htop installed"}
		})

	rec := doRequest(t, srv, http.MethodPost, "/v1/tasks/install-package",
		`{"args":["htop"],"timeout_seconds":60}`, testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExecuteFailureStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		result     supervisor.TaskResult
		wantStatus int
	}{
		{"unavailable maps to 503",
			supervisor.TaskResult{Error: "worker unavailable (state: restarting)", Code: supervisor.CodeUnavailable},
			http.StatusServiceUnavailable},
		{"timeout maps to 504",
			supervisor.TaskResult{Error: "task system-info timed out after 30s", Code: supervisor.CodeTimeout},
			http.StatusGatewayTimeout},
		{"handler error maps to 502",
			supervisor.TaskResult{Error: "Invalid action \"explode\"", Code: -1},
			http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, exec := newTestServer(t)
			exec.EXPECT().
				ExecuteWithOptions(gomock.Any(), "system-info", gomock.Any()).
				Return(tt.result)

			rec := doRequest(t, srv, http.MethodPost, "/v1/tasks/system-info", "", testAPIKey)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), `"success":false`)
		})
	}
}

func TestExecuteRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/v1/tasks/system-info", `{"args":`, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	srv, exec := newTestServer(t)

	exec.EXPECT().IsAvailable().Return(true)
	exec.EXPECT().State().Return(supervisor.StateRunning)
	exec.EXPECT().LogFilePath().Return("/data/logs/taskwarden-abc.log")

	rec := doRequest(t, srv, http.MethodGet, "/v1/status", "", testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":true`)
	assert.Contains(t, rec.Body.String(), `"worker_state":"running"`)
	assert.Contains(t, rec.Body.String(), "taskwarden-abc.log")
}

func TestLogsEndpoint(t *testing.T) {
	srv, exec := newTestServer(t)

	exec.EXPECT().RecentLogs(5).Return([]string{"line one", "line two"}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/v1/logs?n=5", "", testAPIKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "line one")

	rec = doRequest(t, srv, http.MethodGet, "/v1/logs?n=zero", "", testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpointDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/v1/history", "", testAPIKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	srv, exec := newTestServer(t)
	exec.EXPECT().IsAvailable().Return(false)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)
}

func TestAuthRejections(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "not-the-key"},
		{"empty bearer", " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			rec := doRequest(t, srv, http.MethodGet, "/v1/status", "", tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestEmptyConfiguredKeyRejectsEverything(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	exec := mocks.NewMockTaskExecutor(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{Listen: "127.0.0.1:0"}, exec, nil, events.NewHub(16), logger)

	rec := doRequest(t, srv, http.MethodGet, "/v1/status", "", "anything")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidToken(t *testing.T) {
	assert.True(t, validToken("abc", "abc"))
	assert.False(t, validToken("abc", "abd"))
	assert.False(t, validToken("abc", "abcd"))
	assert.False(t, validToken("", "abc"))
	assert.False(t, validToken("abc", ""))
}

func TestRequireTaskName(t *testing.T) {
	srv, _ := newTestServer(t)
	// A trailing slash yields no route match, not an empty-name dispatch.
	rec := doRequest(t, srv, http.MethodPost, "/v1/tasks/", "", testAPIKey)
	require.NotEqual(t, http.StatusOK, rec.Code)
}
