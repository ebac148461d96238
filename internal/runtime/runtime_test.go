package runtime

import (
	"context"
	"encoding/json"
	"testing"

	cfgpkg "github.com/rewindhq/rewind/internal/config"
	"github.com/rewindhq/rewind/internal/envelope"
	"github.com/rewindhq/rewind/internal/reader"
	pebblestore "github.com/rewindhq/rewind/internal/storage/pebble"
)

func newRuntimeForTest(t *testing.T) *Runtime {
	t.Helper()
	rt, err := Open(context.Background(), Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeAlways,
		Config:  cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := newRuntimeForTest(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestIngestThenRead(t *testing.T) {
	rt := newRuntimeForTest(t)
	ctx := context.Background()

	envs := []envelope.Envelope{
		{SessionID: "s1", Sequence: 1, Payload: json.RawMessage(`{"type":2}`)},
		{SessionID: "s1", Sequence: 2, Payload: json.RawMessage(`{"type":3}`)},
	}
	if err := rt.Buffer().Append(ctx, "s1", envs); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rt.Buffer().Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	stream, err := rt.Reader().Read(ctx, "s1", reader.ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(stream.Envelopes) != 2 || stream.Envelopes[0].Sequence != 1 {
		t.Fatalf("round trip broken: %+v", stream.Envelopes)
	}
}

func TestReadSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	rt, err := Open(ctx, Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	envs := []envelope.Envelope{{SessionID: "s1", Sequence: 1, Payload: json.RawMessage(`{}`)}}
	if err := rt.Buffer().Append(ctx, "s1", envs); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt2, err := Open(ctx, Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rt2.Close(ctx)

	stream, err := rt2.Reader().Read(ctx, "s1", reader.ReadOptions{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(stream.Envelopes) != 1 {
		t.Fatalf("close did not drain to durable storage: %+v", stream)
	}
}
