package objstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pebblestore "github.com/rewindhq/rewind/internal/storage/pebble"
)

func newPebbleForTest(t *testing.T) *PebbleStore {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPebbleStore(db)
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemory(),
		"pebble": newPebbleForTest(t),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Put(ctx, "rrweb/recordings/sessionId=s1/a", []byte("body")); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := s.Get(ctx, "rrweb/recordings/sessionId=s1/a")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != "body" {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestGetMissingIsErrNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListPrefixIsolation(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{
				"rrweb/recordings/sessionId=s1/a",
				"rrweb/recordings/sessionId=s1/b",
				"rrweb/recordings/sessionId=s10/a",
				"rrweb/recordings/sessionId=s2/a",
			} {
				if err := s.Put(ctx, k, []byte("x")); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			page, err := s.List(ctx, "rrweb/recordings/sessionId=s1/", "", 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(page.Keys) != 2 {
				t.Fatalf("expected 2 keys for s1, got %v", page.Keys)
			}
			// The trailing slash in the prefix must exclude s10.
			for _, k := range page.Keys {
				if k == "rrweb/recordings/sessionId=s10/a" {
					t.Fatalf("prefix leaked into s10")
				}
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const total = 25
			for i := 0; i < total; i++ {
				key := fmt.Sprintf("p/sessionId=s1/%04d", i)
				if err := s.Put(ctx, key, []byte("x")); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			var all []string
			token := ""
			pages := 0
			for {
				page, err := s.List(ctx, "p/sessionId=s1/", token, 10)
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				all = append(all, page.Keys...)
				pages++
				if page.NextToken == "" {
					break
				}
				token = page.NextToken
			}
			if len(all) != total {
				t.Fatalf("expected %d keys across pages, got %d", total, len(all))
			}
			if pages < 3 {
				t.Fatalf("expected at least 3 pages, got %d", pages)
			}
			for i := 1; i < len(all); i++ {
				if !(all[i-1] < all[i]) {
					t.Fatalf("listing order not lexicographic at %d: %s then %s", i, all[i-1], all[i])
				}
			}
		})
	}
}

func TestListEmptyPrefix(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			page, err := s.List(context.Background(), "p/sessionId=absent/", "", 10)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(page.Keys) != 0 || page.NextToken != "" {
				t.Fatalf("expected empty page, got %+v", page)
			}
		})
	}
}

func TestMemoryFaultInjection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailPuts(boom)
	if err := m.Put(ctx, "k", nil); !errors.Is(err, boom) {
		t.Fatalf("expected injected put error")
	}
	m.FailPuts(nil)
	if err := m.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("put after clear: %v", err)
	}

	m.FailGet("k", boom)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected injected get error")
	}

	m.FailList(boom)
	if _, err := m.List(ctx, "", "", 0); !errors.Is(err, boom) {
		t.Fatalf("expected injected list error")
	}
}
