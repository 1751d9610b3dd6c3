package store

import (
	"context"
	"fmt"
	"sync"
)

type memoryEntry struct {
	data    []byte
	version int64
}

// MemoryBackend keeps collections in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	closed  bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, 0, ErrClosed
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, 0, nil
	}
	return append([]byte(nil), e.data...), e.version, nil
}

func (m *MemoryBackend) Put(_ context.Context, key string, data []byte, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	current := m.entries[key].version
	if expected != AnyVersion && expected != current {
		return 0, fmt.Errorf("%w: %s at version %d, write based on %d", ErrVersionConflict, key, current, expected)
	}

	next := current + 1
	m.entries[key] = memoryEntry{data: append([]byte(nil), data...), version: next}
	return next, nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
