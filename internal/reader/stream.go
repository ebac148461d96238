package reader

import (
	"io"

	"github.com/rewindhq/rewind/internal/envelope"
)

// SessionStream is the reconstructed view of one session: every surviving
// envelope in ascending sequence order, exactly once per sequence.
type SessionStream struct {
	SessionID string
	Envelopes []envelope.Envelope
	// Objects is the number of partition objects the listing discovered.
	Objects int
	// ParseErrors counts undecodable records that were skipped.
	ParseErrors int
	// FailedObjects lists keys that could not be fetched; when non-empty,
	// Incomplete is set and the stream may be missing events.
	FailedObjects []string
	Incomplete    bool
}

// Empty reports whether the stream holds no envelopes.
func (s *SessionStream) Empty() bool { return len(s.Envelopes) == 0 }

// WriteTo renders the stream as JSONL, one envelope per line, in order.
func (s *SessionStream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range s.Envelopes {
		line, err := envelope.Encode(e)
		if err != nil {
			return total, err
		}
		n, err := w.Write(line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Encode renders the stream as a JSONL byte slice.
func (s *SessionStream) Encode() ([]byte, error) {
	return envelope.EncodeAll(s.Envelopes)
}
