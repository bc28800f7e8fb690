// Package memory implements store.RecordStore fully in memory. Safe for
// concurrent access. Intended for unit testing and development; it
// survives neither reboot nor crash.
package memory

import (
	"context"
	"sync"

	"github.com/warrennet/warren"
	"github.com/warrennet/warren/store"
)

// Compile-time interface check.
var _ store.RecordStore = (*Store)(nil)

// Store is an in-memory RecordStore.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put implements store.RecordStore.
func (m *Store) Put(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return warren.ErrStoreClosed
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.blobs[key] = cp
	return nil
}

// Get implements store.RecordStore.
func (m *Store) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, warren.ErrStoreClosed
	}
	blob, ok := m.blobs[key]
	if !ok {
		return nil, warren.ErrRequestNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

// Delete implements store.RecordStore.
func (m *Store) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return warren.ErrStoreClosed
	}
	delete(m.blobs, key)
	return nil
}

// Keys implements store.RecordStore.
func (m *Store) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, warren.ErrStoreClosed
	}
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys, nil
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close marks the store closed; further operations fail with
// warren.ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored blobs. Test helper.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
