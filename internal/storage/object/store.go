package objstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for keys with no object.
var ErrNotFound = errors.New("objstore: object not found")

// Page is one page of a key listing. Keys are in lexicographic order; when
// NextToken is non-empty, more keys exist and the token resumes the listing.
type Page struct {
	Keys      []string
	NextToken string
}

// Store is the storage boundary. Implementations must make Put atomic: after
// a successful return the object is immediately and permanently visible to
// List and Get; a failed Put leaves nothing partially visible.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix, pageToken string, pageSize int) (Page, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
