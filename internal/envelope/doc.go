// Package envelope implements the event-record codec: one recorded
// interaction event per newline-terminated JSON line.
//
// The wire format is fixed by the storage contract (partition objects hold
// line-delimited envelopes, served back as application/jsonl+json):
//
//	{"sessionId":"s1","sequence":0,"payload":{...},"receivedAtMs":1700000000000}
//
// JSON string escaping guarantees an encoded line never contains a raw
// newline, so any payload round-trips exactly. Decoding is tolerant: a
// corrupt or truncated line yields a *ParseError that callers skip and
// count rather than failing a whole stream.
package envelope
