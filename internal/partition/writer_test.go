package partition

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rewindhq/rewind/internal/envelope"
	objstore "github.com/rewindhq/rewind/internal/storage/object"
)

func newWriterForTest(t *testing.T, store objstore.Store) *Writer {
	t.Helper()
	w := NewWriter(store, WriterOptions{
		Policy: RetryPolicy{Base: time.Millisecond, Cap: time.Millisecond, Factor: 2.0, MaxAttempts: 3},
	})
	w.nowMs = func() int64 { return 1700000000000 }
	return w
}

func testEnvs(sessionID string, seqs ...int64) []envelope.Envelope {
	envs := make([]envelope.Envelope, len(seqs))
	for i, seq := range seqs {
		envs[i] = envelope.Envelope{
			SessionID: sessionID,
			Sequence:  seq,
			Payload:   json.RawMessage(`{"type":3}`),
		}
	}
	return envs
}

func TestFlushWritesOneObjectUnderPrefix(t *testing.T) {
	mem := objstore.NewMemory()
	w := newWriterForTest(t, mem)

	key, err := w.Flush(context.Background(), "s1", testEnvs("s1", 1, 2, 3))
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !strings.HasPrefix(key, Prefix(DefaultRoot, "s1")) {
		t.Fatalf("key %q not under session prefix", key)
	}
	if mem.PutCount() != 1 {
		t.Fatalf("expected exactly one put, got %d", mem.PutCount())
	}

	data, err := mem.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	envs, skipped := envelope.DecodeAll(data)
	if skipped != 0 {
		t.Fatalf("object body not clean jsonl: %v", skipped)
	}
	if len(envs) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(envs))
	}
	for i, e := range envs {
		if e.Sequence != int64(i+1) {
			t.Fatalf("order not preserved: env %d has sequence %d", i, e.Sequence)
		}
		if e.ReceivedAtMs != 1700000000000 {
			t.Fatalf("envelope %d not stamped: %d", i, e.ReceivedAtMs)
		}
	}
}

func TestFlushEmptyBatchIsNoOp(t *testing.T) {
	mem := objstore.NewMemory()
	w := newWriterForTest(t, mem)

	key, err := w.Flush(context.Background(), "s1", nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
	if mem.PutCount() != 0 {
		t.Fatalf("empty flush must not write, got %d puts", mem.PutCount())
	}
}

func TestFlushRejectsMismatchedSession(t *testing.T) {
	w := newWriterForTest(t, objstore.NewMemory())
	envs := testEnvs("s1", 1)
	envs = append(envs, testEnvs("s2", 2)...)
	if _, err := w.Flush(context.Background(), "s1", envs); err == nil {
		t.Fatal("expected error for mixed sessions in single flush")
	}
}

func TestFlushRejectsInvalidSessionID(t *testing.T) {
	w := newWriterForTest(t, objstore.NewMemory())
	if _, err := w.Flush(context.Background(), "a/b", testEnvs("", 1)); err == nil {
		t.Fatal("expected error for invalid session id")
	}
}

func TestFlushPreservesExistingReceivedAt(t *testing.T) {
	mem := objstore.NewMemory()
	w := newWriterForTest(t, mem)

	envs := testEnvs("s1", 1)
	envs[0].ReceivedAtMs = 42
	key, err := w.Flush(context.Background(), "s1", envs)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, _ := mem.Get(context.Background(), key)
	got, _ := envelope.DecodeAll(data)
	if got[0].ReceivedAtMs != 42 {
		t.Fatalf("existing ReceivedAtMs overwritten: %d", got[0].ReceivedAtMs)
	}
}

func TestFlushAllSplitsMixedSessions(t *testing.T) {
	mem := objstore.NewMemory()
	w := newWriterForTest(t, mem)

	envs := []envelope.Envelope{
		{SessionID: "s1", Sequence: 1, Payload: json.RawMessage(`{}`)},
		{SessionID: "s2", Sequence: 1, Payload: json.RawMessage(`{}`)},
		{SessionID: "s1", Sequence: 2, Payload: json.RawMessage(`{}`)},
	}
	keys, err := w.FlushAll(context.Background(), envs)
	if err != nil {
		t.Fatalf("flush all: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected one object per session, got %d", len(keys))
	}
	if !strings.HasPrefix(keys[0], Prefix(DefaultRoot, "s1")) {
		t.Fatalf("first-seen session should flush first: %q", keys[0])
	}
	data, err := mem.Get(context.Background(), keys[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := envelope.DecodeAll(data)
	if len(got) != 2 || got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("within-session order lost: %+v", got)
	}
}

func TestFlushAllRejectsMissingSessionID(t *testing.T) {
	w := newWriterForTest(t, objstore.NewMemory())
	envs := []envelope.Envelope{{Sequence: 1, Payload: json.RawMessage(`{}`)}}
	if _, err := w.FlushAll(context.Background(), envs); err == nil {
		t.Fatal("expected error for envelope without session id")
	}
}

// flakyStore fails the first n puts, then delegates.
type flakyStore struct {
	objstore.Store
	failures int
	attempts int
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("transient put failure")
	}
	return f.Store.Put(ctx, key, data)
}

func TestFlushRetriesThenSucceeds(t *testing.T) {
	mem := objstore.NewMemory()
	flaky := &flakyStore{Store: mem, failures: 2}
	w := newWriterForTest(t, flaky)

	key, err := w.Flush(context.Background(), "s1", testEnvs("s1", 1))
	if err != nil {
		t.Fatalf("flush should recover from transient failures: %v", err)
	}
	if flaky.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.attempts)
	}
	if _, err := mem.Get(context.Background(), key); err != nil {
		t.Fatalf("object missing after recovered flush: %v", err)
	}
}

func TestFlushExhaustionReturnsFlushFailed(t *testing.T) {
	mem := objstore.NewMemory()
	mem.FailPuts(errors.New("store down"))
	w := newWriterForTest(t, mem)

	_, err := w.Flush(context.Background(), "s1", testEnvs("s1", 1))
	if !errors.Is(err, ErrFlushFailed) {
		t.Fatalf("expected ErrFlushFailed, got %v", err)
	}
}

func TestFlushHonorsContextCancellation(t *testing.T) {
	mem := objstore.NewMemory()
	mem.FailPuts(errors.New("store down"))
	w := NewWriter(mem, WriterOptions{
		Policy: RetryPolicy{Base: time.Hour, Cap: time.Hour, Factor: 2.0, MaxAttempts: 5},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.Flush(ctx, "s1", testEnvs("s1", 1))
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrFlushFailed) {
			t.Fatalf("expected ErrFlushFailed on cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("flush did not return after cancellation")
	}
}

func TestFlushKeysSortInFlushOrder(t *testing.T) {
	mem := objstore.NewMemory()
	w := newWriterForTest(t, mem)

	k1, err := w.Flush(context.Background(), "s1", testEnvs("s1", 1))
	if err != nil {
		t.Fatalf("flush 1: %v", err)
	}
	k2, err := w.Flush(context.Background(), "s1", testEnvs("s1", 2))
	if err != nil {
		t.Fatalf("flush 2: %v", err)
	}
	if !(k1 < k2) {
		t.Fatalf("later flush must sort after earlier: %q vs %q", k1, k2)
	}
}
