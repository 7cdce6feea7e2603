package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(Execute("t1-100", "manage-service", []any{"nginx", "restart"})))
	require.NoError(t, enc.Encode(Complete("t1-100", "Service nginx restart completed")))
	require.NoError(t, enc.Encode(Failure("t2-101", "unknown task", 0)))
	require.NoError(t, enc.Encode(Ready(4242)))

	dec := NewDecoder(&buf)

	env, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeExecuteTask, env.Type)
	assert.Equal(t, "t1-100", env.TaskID)
	assert.Equal(t, "manage-service", env.TaskName)
	assert.Equal(t, []any{"nginx", "restart"}, env.Args)

	env, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeTaskComplete, env.Type)
	assert.Equal(t, "Service nginx restart completed", env.Result)
	assert.True(t, env.IsReply())

	env, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeTaskError, env.Type)
	assert.Equal(t, DefaultErrorCode, env.Code, "zero code must normalize to the default")

	env, err = dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeWorkerReady, env.Type)
	assert.Equal(t, 4242, env.PID)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeSkipsBlankLines(t *testing.T) {
	in := "\n\n" + `{"type":"worker-ready","pid":7}` + "\n\n"
	dec := NewDecoder(strings.NewReader(in))

	env, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeWorkerReady, env.Type)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeRejectsMalformedEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"missing type", `{"task_id":"t1"}`},
		{"execute without task_id", `{"type":"execute-task","task_name":"system-info"}`},
		{"execute without task_name", `{"type":"execute-task","task_id":"t1"}`},
		{"complete without task_id", `{"type":"task-complete","result":"ok"}`},
		{"error without task_id", `{"type":"task-error","error":"boom"}`},
		{"error without message", `{"type":"task-error","task_id":"t1"}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(strings.NewReader(tt.line + "\n"))
			_, err := dec.Decode()
			assert.Error(t, err)
		})
	}
}

func TestDecodeUnknownTypeIsSentinel(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"mystery"}` + "\n" + `{"type":"worker-ready"}` + "\n"))

	_, err := dec.Decode()
	require.True(t, errors.Is(err, ErrUnknownType), "got %v", err)

	// The stream stays usable after skipping the unknown message.
	env, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, TypeWorkerReady, env.Type)
}

func TestEncodeRejectsInvalidEnvelope(t *testing.T) {
	enc := NewEncoder(&bytes.Buffer{})
	err := enc.Encode(Envelope{Type: TypeExecuteTask})
	assert.Error(t, err)
}
