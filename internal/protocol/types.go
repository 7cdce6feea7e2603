package protocol

// Message type tags exchanged between supervisor and worker. Messages are
// discrete JSON objects, one per line, over the worker's stdin/stdout.
const (
	TypeExecuteTask  = "execute-task"
	TypeTaskComplete = "task-complete"
	TypeTaskError    = "task-error"
	TypeWorkerReady  = "worker-ready"
)

// DefaultErrorCode is used when a task failure carries no code of its own.
const DefaultErrorCode = -1

// Envelope is the single wire shape for every message in either direction.
// Type selects which fields are meaningful; the codec enforces the rules.
type Envelope struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id,omitempty"`
	TaskName string `json:"task_name,omitempty"`
	Args     []any  `json:"args,omitempty"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     int    `json:"code,omitempty"`
	PID      int    `json:"pid,omitempty"`
}

// Execute builds a dispatch message for one task invocation.
func Execute(taskID, taskName string, args []any) Envelope {
	return Envelope{
		Type:     TypeExecuteTask,
		TaskID:   taskID,
		TaskName: taskName,
		Args:     args,
	}
}

// Complete builds a success reply carrying the handler's result.
func Complete(taskID string, result any) Envelope {
	return Envelope{
		Type:   TypeTaskComplete,
		TaskID: taskID,
		Result: result,
	}
}

// Failure builds an error reply. A zero code is normalized to
// DefaultErrorCode so a missing code never reads as success downstream.
func Failure(taskID, errMsg string, code int) Envelope {
	if code == 0 {
		code = DefaultErrorCode
	}
	return Envelope{
		Type:   TypeTaskError,
		TaskID: taskID,
		Error:  errMsg,
		Code:   code,
	}
}

// Ready builds the boot handshake announcing the worker's pid.
func Ready(pid int) Envelope {
	return Envelope{
		Type: TypeWorkerReady,
		PID:  pid,
	}
}

// IsReply reports whether the envelope is a terminal reply for a request.
func (e Envelope) IsReply() bool {
	return e.Type == TypeTaskComplete || e.Type == TypeTaskError
}
