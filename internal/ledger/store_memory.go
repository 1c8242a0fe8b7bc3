package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps records and segments in memory. Used by tests and the
// FFI default wiring; the RWMutex lets readers run concurrently with the
// single writer.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	segments []Segment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEvent(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) AppendSegment(_ context.Context, seg Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
	return nil
}

func (s *MemoryStore) EventsBySegment(_ context.Context, segmentIndex uint64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.SegmentIndex == segmentIndex {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) Segments(_ context.Context) ([]Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Segment{}, s.segments...), nil
}

// All returns every record in append order, for tests that assert on the
// exact event sequence.
func (s *MemoryStore) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record{}, s.records...)
}
