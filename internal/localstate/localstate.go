// Package localstate persists the two durable keys of the offline core: the
// pending-sales queue and the inventory delta cache. Each value is a full
// JSON document rewritten on every mutation; there is no append-only format.
//
// Backends: a sqlite file (the usual per-terminal setup), redis (terminals
// that already run one for other services), and an in-process map for tests
// and throwaway dev sessions.
package localstate

import (
	"context"
	"sync"
)

const (
	KeyPendingSales    = "pos:pending-sales"
	KeyInventoryDeltas = "pos:inventory-deltas"
)

type Store interface {
	// Get returns the stored document and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set overwrites the whole document for the key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory keeps state for the lifetime of the process only. Sales captured
// offline do not survive a restart on this backend; main logs a warning when
// it is selected.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	if !exists {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
