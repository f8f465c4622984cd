package store

import (
	"context"
	"sync"

	"reniec/internal/persona"
)

// MemoryStore is an in-memory Store for tests and fakes. It satisfies the
// same contract as the real backends, including ErrNotFound on misses.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]persona.Person

	// FailWith, when set, is returned by FindByDNI to simulate a broken
	// backend.
	FailWith error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]persona.Person)}
}

// Put inserts or replaces a record, keyed by DNI.
func (m *MemoryStore) Put(p persona.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[p.DNI] = p
}

// InitializeSchema is a no-op; the map needs no provisioning.
func (m *MemoryStore) InitializeSchema(context.Context) error { return nil }

func (m *MemoryStore) FindByDNI(_ context.Context, dni string) (*persona.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if p, ok := m.records[dni]; ok {
		return &p, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}
