package partition

import (
	"fmt"
	"strings"
)

// DefaultRoot is the storage key root. Preserved verbatim for compatibility
// with tooling that reads the bucket layout directly.
const DefaultRoot = "rrweb/recordings"

const sessionSeg = "/sessionId="

// MaxSessionIDLen bounds session identifiers; they are embedded in keys.
const MaxSessionIDLen = 256

// ValidSessionID reports whether s can be embedded in a partition key.
// Session ids are opaque to the pipeline but must not contain the key
// separator or control characters.
func ValidSessionID(s string) bool {
	if s == "" || len(s) > MaxSessionIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// Prefix returns the listing prefix that discovers every partition object of
// a session. The trailing slash keeps sessionId=s1 from matching sessionId=s10.
func Prefix(root, sessionID string) string {
	return root + sessionSeg + sessionID + "/"
}

// Key builds a full partition-object key.
func Key(root, sessionID, suffix string) string {
	return Prefix(root, sessionID) + suffix
}

// ParseKey splits a partition-object key back into session id and suffix.
func ParseKey(root, key string) (sessionID, suffix string, err error) {
	rest, ok := strings.CutPrefix(key, root+sessionSeg)
	if !ok {
		return "", "", fmt.Errorf("partition: key %q not under root %q", key, root)
	}
	sessionID, suffix, ok = strings.Cut(rest, "/")
	if !ok || sessionID == "" || suffix == "" {
		return "", "", fmt.Errorf("partition: malformed key %q", key)
	}
	return sessionID, suffix, nil
}
