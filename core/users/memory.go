package users

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is meant for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// EnsureUser returns the existing record or stores a new one with defaults.
func (m *MemoryStore) EnsureUser(ctx context.Context, id, name string) (Record, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		rec = Record{ID: id, Name: name}
		m.records[id] = rec
	}
	m.mu.Unlock()

	logEnsured(ctx, rec, !ok, func() (int, error) { return m.Count(ctx) })
	return rec, nil
}

// Commit overwrites SecretText and Armed of an existing record.
func (m *MemoryStore) Commit(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	stored.SecretText = rec.SecretText
	stored.Armed = rec.Armed
	m.records[rec.ID] = stored
	return nil
}

// Find returns the record for id or ErrNotFound.
func (m *MemoryStore) Find(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Count returns the number of stored users.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
