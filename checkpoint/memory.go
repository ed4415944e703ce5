package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in memory. Snapshots are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*Snapshot)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, executionID string, snap *Snapshot) error {
	prepared, err := prepare(executionID, snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[executionID] = prepared
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, executionID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone(), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.snaps))
	for _, snap := range m.snaps {
		if info := snap.info(); filter.match(info) {
			infos = append(infos, info)
		}
	}
	return finish(infos, filter), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, executionID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}
