package storage

import (
	"context"
	"sync"

	"quotagate/internal/quota"
)

// MemoryStore keeps records in process. It is the single-node default and
// the store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*quota.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*quota.Record)}
}

func (m *MemoryStore) Get(_ context.Context, hashKey, clientID string) (*quota.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[quota.RecordKey(hashKey, clientID)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, record *quota.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.Key()] = record.Clone()
	return nil
}

func (m *MemoryStore) PutBatch(ctx context.Context, records []*quota.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.records[r.Key()] = r.Clone()
	}
	return nil
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error {
	return nil
}
