package dataset

import (
	"context"
	"sync"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// MemoryStore keeps dataset metadata in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[domain.DatasetID]Dataset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{datasets: make(map[domain.DatasetID]Dataset)}
}

func (s *MemoryStore) Put(_ context.Context, d Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.ID] = d
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.DatasetID) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return Dataset{}, status.Invalid("dataset_unknown")
	}
	return d, nil
}
