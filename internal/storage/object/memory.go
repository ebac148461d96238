package objstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store for tests. It supports injecting failures on
// each operation to exercise retry and partial-read paths.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr   error
	listErr  error
	getErrs  map[string]error
	putCount int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), getErrs: make(map[string]error)}
}

// FailPuts makes every subsequent Put return err (nil clears).
func (m *Memory) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// FailList makes every subsequent List return err (nil clears).
func (m *Memory) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailGet makes Get for one key return err (nil clears).
func (m *Memory) FailGet(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.getErrs, key)
		return
	}
	m.getErrs[key] = err
}

// PutCount reports the number of successful puts.
func (m *Memory) PutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCount
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), data...)
	m.putCount++
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.getErrs[key]; ok {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// List implements Store. The page token is the last key of the previous page.
func (m *Memory) List(ctx context.Context, prefix, pageToken string, pageSize int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return Page{}, m.listErr
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > pageToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var page Page
	if len(keys) > pageSize {
		page.Keys = keys[:pageSize]
		page.NextToken = page.Keys[pageSize-1]
	} else {
		page.Keys = keys
	}
	return page, nil
}
