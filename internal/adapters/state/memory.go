package state

import (
	"context"
	"sync"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// MemoryStore implements output.StateStore in memory. Records are lost on
// restart, so staleness falls back to size comparison.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.LocalRecord
}

var _ output.StateStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.LocalRecord)}
}

// Get implements output.StateStore.
func (s *MemoryStore) Get(_ context.Context, key string) (domain.LocalRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok, nil
}

// Put implements output.StateStore.
func (s *MemoryStore) Put(_ context.Context, rec domain.LocalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
	return nil
}

// Delete implements output.StateStore.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Close implements output.StateStore.
func (s *MemoryStore) Close() error { return nil }
