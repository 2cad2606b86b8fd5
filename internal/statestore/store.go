package statestore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound indicates the key has never been written.
var ErrNotFound = errors.New("state key not found")

// Store is a key/value document store keyed by logical path.
type Store interface {
	// Write persists content under key, replacing any previous value.
	Write(ctx context.Context, key, content string) error

	// Read returns the content at key, or ErrNotFound.
	Read(ctx context.Context, key string) (string, error)
}

// MemStore is an in-process Store used by tests and as a fallback when
// no git repository is available.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

// Write stores content under key.
func (m *MemStore) Write(_ context.Context, key, content string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = content
	return nil
}

// Read returns the content at key.
func (m *MemStore) Read(_ context.Context, key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}
