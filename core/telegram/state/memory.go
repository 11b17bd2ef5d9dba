package state

import (
	"context"
	"sync"
)

// Memory is an in-process Store. State is lost on restart.
type Memory[S any] struct {
	mu     sync.RWMutex
	values map[int64]S
}

// NewMemory constructs an empty in-memory store.
func NewMemory[S any]() *Memory[S] {
	return &Memory[S]{values: make(map[int64]S)}
}

// Get returns the stored state for key.
func (m *Memory[S]) Get(_ context.Context, key int64) (S, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set replaces the stored state for key.
func (m *Memory[S]) Set(_ context.Context, key int64, value S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Len returns the number of stored conversations.
func (m *Memory[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
