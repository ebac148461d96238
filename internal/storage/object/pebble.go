package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rewindhq/rewind/internal/storage/pebble"
)

// Pebble object keyspace: obj/{key} -> object bytes. Object keys are stored
// verbatim after the prefix, so lexicographic iteration over obj/{prefix}
// yields the same listing order S3 would.
var objPrefix = []byte("obj/")

// PebbleStore implements Store on an embedded Pebble database.
type PebbleStore struct {
	db *pebblestore.DB
}

// NewPebbleStore wraps an open database.
func NewPebbleStore(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db}
}

func objKey(key string) []byte {
	b := make([]byte, 0, len(objPrefix)+len(key))
	b = append(b, objPrefix...)
	b = append(b, key...)
	return b
}

// Put implements Store. Pebble batch commits are atomic, so a failed write
// leaves no partially visible object.
func (s *PebbleStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("objstore: empty key")
	}
	return s.db.Set(objKey(key), data)
}

// Get implements Store.
func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := s.db.Get(objKey(key))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return val, nil
}

// List implements Store. The page token is the last key of the previous page;
// listing resumes strictly after it.
func (s *PebbleStore) List(ctx context.Context, prefix, pageToken string, pageSize int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if pageSize <= 0 {
		pageSize = 1000
	}

	lower := objKey(prefix)
	if pageToken != "" {
		// Resume after the token key. Appending a zero byte makes the bound
		// exclusive of the token itself.
		lower = append(objKey(pageToken), 0x00)
	}
	upper := prefixSuccessor(objKey(prefix))

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return Page{}, err
	}
	defer iter.Close()

	var page Page
	for iter.First(); iter.Valid(); iter.Next() {
		if len(page.Keys) == pageSize {
			page.NextToken = page.Keys[len(page.Keys)-1]
			return page, nil
		}
		page.Keys = append(page.Keys, string(iter.Key()[len(objPrefix):]))
	}
	return page, iter.Error()
}

// prefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil when no upper bound exists (all 0xff).
func prefixSuccessor(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
