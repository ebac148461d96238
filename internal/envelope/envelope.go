package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxSafeSequence is the largest sequence number the codec accepts. Browser
// producers assign sequences as JavaScript numbers, so values must stay in
// the 53-bit safe-integer range.
const MaxSafeSequence = int64(1)<<53 - 1

// Envelope is one recorded interaction event plus its session identity and
// ordering sequence. Payload is opaque and round-tripped byte-exactly.
type Envelope struct {
	SessionID string          `json:"sessionId"`
	Sequence  int64           `json:"sequence"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	// ReceivedAtMs is assigned at flush time. It is a tie-break and bucketing
	// hint only; Sequence is the ordering key.
	ReceivedAtMs int64 `json:"receivedAtMs,omitempty"`
}

// ParseError reports a single undecodable record. It is recoverable: readers
// skip and count it.
type ParseError struct {
	Line int // zero-based line index within the object, -1 if unknown
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("envelope: parse error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("envelope: parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Encode serializes one envelope as a single newline-terminated line.
// Envelopes that could not be decoded back (empty session, negative or
// unsafe sequence, payload that is not valid JSON) are rejected.
func Encode(e Envelope) ([]byte, error) {
	if e.SessionID == "" {
		return nil, errors.New("envelope: empty sessionId")
	}
	if e.Sequence < 0 || e.Sequence > MaxSafeSequence {
		return nil, fmt.Errorf("envelope: sequence %d outside safe range", e.Sequence)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return append(b, '\n'), nil
}

// wireEnvelope distinguishes an absent sequence from an explicit zero.
type wireEnvelope struct {
	SessionID    string          `json:"sessionId"`
	Sequence     *int64          `json:"sequence"`
	Payload      json.RawMessage `json:"payload"`
	ReceivedAtMs int64           `json:"receivedAtMs"`
}

// Decode parses a single line. Trailing newline is accepted. Malformed input
// is reported as *ParseError.
func Decode(line []byte) (Envelope, error) {
	line = bytes.TrimRight(line, "\r\n")
	var w wireEnvelope
	if err := json.Unmarshal(line, &w); err != nil {
		return Envelope{}, &ParseError{Line: -1, Err: err}
	}
	if w.SessionID == "" {
		return Envelope{}, &ParseError{Line: -1, Err: errors.New("missing sessionId")}
	}
	if w.Sequence == nil {
		return Envelope{}, &ParseError{Line: -1, Err: errors.New("missing sequence")}
	}
	if *w.Sequence < 0 || *w.Sequence > MaxSafeSequence {
		return Envelope{}, &ParseError{Line: -1, Err: fmt.Errorf("sequence %d outside safe range", *w.Sequence)}
	}
	return Envelope{
		SessionID:    w.SessionID,
		Sequence:     *w.Sequence,
		Payload:      w.Payload,
		ReceivedAtMs: w.ReceivedAtMs,
	}, nil
}

// DecodeAll parses every line of a partition object. Undecodable lines
// (including a half-flushed trailing fragment) are skipped and counted.
func DecodeAll(data []byte) (envs []Envelope, skipped int) {
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		e, err := Decode(line)
		if err != nil {
			skipped++
			continue
		}
		envs = append(envs, e)
	}
	return envs, skipped
}

// EncodeAll serializes a batch into one object body, one line per envelope.
func EncodeAll(envs []Envelope) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range envs {
		line, err := Encode(e)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}
