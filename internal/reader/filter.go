package reader

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rewindhq/rewind/internal/envelope"
)

// Filter wraps a compiled CEL program evaluated per envelope during a session
// read. When the expression is empty the filter is disabled and Eval always
// returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles a CEL expression. Available variables:
//
//	session_id     string  the session being read
//	sequence       int     envelope ordering sequence
//	received_at_ms int     flush-time receive timestamp
//	size           int     payload size in bytes
//	text           string  raw payload text
//	json           dyn     parsed payload for field access
//	now_ms         int     current time for windowed filters
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("session_id", cel.StringType),
		cel.Variable("sequence", cel.IntType),
		cel.Variable("received_at_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether a non-empty expression was compiled.
func (f Filter) Enabled() bool { return f.enabled }

// Eval evaluates the expression against one envelope. Evaluation errors
// exclude the envelope rather than failing the read.
func (f Filter) Eval(e envelope.Envelope) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(e.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"session_id":     e.SessionID,
		"sequence":       e.Sequence,
		"received_at_ms": e.ReceivedAtMs,
		"size":           int64(len(e.Payload)),
		"text":           string(e.Payload),
		"json":           jsonObj,
		"now_ms":         time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
