package partition

import (
	"strings"
	"testing"
)

func TestKeyFormatBitExact(t *testing.T) {
	key := Key(DefaultRoot, "abc-123", "0000018c5f2a00000000000000000001")
	want := "rrweb/recordings/sessionId=abc-123/0000018c5f2a00000000000000000001"
	if key != want {
		t.Fatalf("key format drifted:\n got %q\nwant %q", key, want)
	}
}

func TestPrefixExcludesSiblingSessions(t *testing.T) {
	p1 := Prefix(DefaultRoot, "s1")
	if !strings.HasSuffix(p1, "/") {
		t.Fatalf("prefix must end with slash: %q", p1)
	}
	k10 := Key(DefaultRoot, "s10", "x")
	if strings.HasPrefix(k10, p1) {
		t.Fatalf("s10 key %q matches s1 prefix %q", k10, p1)
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	key := Key(DefaultRoot, "s1", "suffix-1")
	sid, suffix, err := ParseKey(DefaultRoot, key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sid != "s1" || suffix != "suffix-1" {
		t.Fatalf("got %q %q", sid, suffix)
	}
}

func TestParseKeyRejects(t *testing.T) {
	cases := []string{
		"other/root/sessionId=s1/x",
		"rrweb/recordings/sessionId=s1",  // no suffix
		"rrweb/recordings/sessionId=/x1", // empty session
		"rrweb/recordings/nope",
	}
	for _, key := range cases {
		if _, _, err := ParseKey(DefaultRoot, key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}

func TestValidSessionID(t *testing.T) {
	valid := []string{"s1", "abc-123", "f81d4fae-7dec-11d0-a765-00a0c91e6bf6", "UserSession_42"}
	for _, s := range valid {
		if !ValidSessionID(s) {
			t.Fatalf("expected valid: %q", s)
		}
	}
	invalid := []string{"", "a/b", "a\nb", "a\x00b", strings.Repeat("x", MaxSessionIDLen+1)}
	for _, s := range invalid {
		if ValidSessionID(s) {
			t.Fatalf("expected invalid: %q", s)
		}
	}
}
