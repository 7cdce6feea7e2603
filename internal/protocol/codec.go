package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnknownType marks envelopes whose type tag is not part of the
// contract. Receivers may skip these without tearing down the stream.
var ErrUnknownType = errors.New("unknown message type")

// maxLineBytes caps a single wire message. Task results are command output
// capped at 10 MiB by the runner; allow headroom for JSON escaping.
const maxLineBytes = 32 << 20

// Encoder writes newline-delimited JSON envelopes. Safe for concurrent use:
// the worker emits replies from many handler goroutines over one stdout.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode validates and writes one envelope.
func (e *Encoder) Encode(env Envelope) error {
	if err := validate(env); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(env); err != nil {
		return fmt.Errorf("encode %s message: %w", env.Type, err)
	}
	return nil
}

// Decoder reads newline-delimited JSON envelopes.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Decoder{scanner: sc}
}

// Decode reads the next envelope. Returns io.EOF when the stream ends
// cleanly. Blank lines are skipped.
func (d *Decoder) Decode() (Envelope, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return Envelope{}, fmt.Errorf("decode message: %w", err)
		}
		if err := validate(env); err != nil {
			return Envelope{}, err
		}
		return env, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Envelope{}, fmt.Errorf("read message stream: %w", err)
	}
	return Envelope{}, io.EOF
}

// validate enforces the per-type field contract shared by both directions.
func validate(env Envelope) error {
	switch env.Type {
	case TypeExecuteTask:
		if env.TaskID == "" {
			return fmt.Errorf("%s message missing task_id", env.Type)
		}
		if env.TaskName == "" {
			return fmt.Errorf("%s message missing task_name", env.Type)
		}
	case TypeTaskComplete:
		if env.TaskID == "" {
			return fmt.Errorf("%s message missing task_id", env.Type)
		}
	case TypeTaskError:
		if env.TaskID == "" {
			return fmt.Errorf("%s message missing task_id", env.Type)
		}
		if env.Error == "" {
			return fmt.Errorf("%s message missing error text", env.Type)
		}
	case TypeWorkerReady:
		// pid is informational only
	case "":
		return fmt.Errorf("message missing type")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return nil
}
