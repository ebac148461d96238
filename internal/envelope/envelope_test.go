package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	in := Envelope{
		SessionID:    "s1",
		Sequence:     42,
		Payload:      json.RawMessage(`{"type":"click","x":10,"y":20}`),
		ReceivedAtMs: 1700000000000,
	}
	line, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasSuffix(line, []byte("\n")) {
		t.Fatalf("line not newline-terminated")
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Fatalf("line contains interior newline")
	}
	out, err := Decode(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SessionID != in.SessionID || out.Sequence != in.Sequence || out.ReceivedAtMs != in.ReceivedAtMs {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("payload not byte-exact: %s vs %s", out.Payload, in.Payload)
	}
}

func TestRoundTripPayloadWithNewlines(t *testing.T) {
	// Payload contains literal newline characters inside a JSON string; JSON
	// escaping must keep the encoded record on one line.
	payload, _ := json.Marshal(map[string]string{"text": "line1\nline2\r\nline3"})
	in := Envelope{SessionID: "s1", Sequence: 0, Payload: payload}
	line, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Fatalf("escaping failed, interior newline present: %q", line)
	}
	out, err := Decode(line)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(out.Payload, &got); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if got["text"] != "line1\nline2\r\nline3" {
		t.Fatalf("payload content mangled: %q", got["text"])
	}
}

func TestEncodeRejects(t *testing.T) {
	cases := []Envelope{
		{SessionID: "", Sequence: 0},
		{SessionID: "s1", Sequence: -1},
		{SessionID: "s1", Sequence: MaxSafeSequence + 1},
		{SessionID: "s1", Sequence: 0, Payload: json.RawMessage(`{not json`)},
	}
	for i, e := range cases {
		if _, err := Encode(e); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := []string{
		`{"sequence":0,"payload":{}}`,              // missing sessionId
		`{"sessionId":"s1","payload":{}}`,          // missing sequence
		`{"sessionId":"s1","sequence":-2}`,         // negative sequence
		`{"sessionId":"s1","sequence":0,"payload"`, // truncated
		`garbage`,
	}
	for i, line := range cases {
		_, err := Decode([]byte(line))
		if err == nil {
			t.Fatalf("case %d: expected error", i)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("case %d: expected *ParseError, got %T", i, err)
		}
	}
}

func TestDecodeAcceptsExplicitZeroSequence(t *testing.T) {
	e, err := Decode([]byte(`{"sessionId":"s1","sequence":0,"payload":"a"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Sequence != 0 {
		t.Fatalf("sequence: %d", e.Sequence)
	}
}

func TestDecodeAllSkipsCorruptTrailingLine(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		line, err := Encode(Envelope{SessionID: "s1", Sequence: int64(i), Payload: json.RawMessage(`"p"`)})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		buf.Write(line)
	}
	// half-flushed trailing fragment
	buf.WriteString(`{"sessionId":"s1","seq`)

	envs, skipped := DecodeAll(buf.Bytes())
	if len(envs) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(envs))
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped line, got %d", skipped)
	}
}

func TestDecodeAllEmptyObject(t *testing.T) {
	envs, skipped := DecodeAll(nil)
	if len(envs) != 0 || skipped != 0 {
		t.Fatalf("empty object should yield nothing")
	}
	envs, skipped = DecodeAll([]byte("\n\n"))
	if len(envs) != 0 || skipped != 0 {
		t.Fatalf("blank lines are not parse errors")
	}
}

func TestEncodeAll(t *testing.T) {
	body, err := EncodeAll([]Envelope{
		{SessionID: "s1", Sequence: 0, Payload: json.RawMessage(`"a"`)},
		{SessionID: "s1", Sequence: 1, Payload: json.RawMessage(`"b"`)},
	})
	if err != nil {
		t.Fatalf("encode all: %v", err)
	}
	envs, skipped := DecodeAll(body)
	if len(envs) != 2 || skipped != 0 {
		t.Fatalf("decode all: %d envs, %d skipped", len(envs), skipped)
	}
	if envs[1].Sequence != 1 {
		t.Fatalf("order lost")
	}
}
