package supervisor

// Result codes for failures that originate in the supervisor rather than in
// a task handler. Handler failures keep the worker-reported code (-1 when
// the failure carries none).
const (
	CodeUnavailable = -2
	CodeTimeout     = -3
	CodeShutdown    = -4
)

// TaskResult is the uniform result shape every Execute call resolves to.
// Business-level failures are carried here, never as Go errors.
type TaskResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func successResult(data any) TaskResult {
	return TaskResult{Success: true, Data: data}
}

func failureResult(msg string, code int) TaskResult {
	return TaskResult{Success: false, Error: msg, Code: code}
}
