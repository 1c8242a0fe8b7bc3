// Package boundary is the process boundary layer: the closed status-code
// contract and the ownership discipline for strings handed across it. The
// cgo shims in capi stay thin by delegating everything here, which keeps
// the ownership rules testable without a C toolchain.
package boundary

import "sync"

// Handle identifies one owned string. The zero handle is never issued.
type Handle uint64

// Counters is a snapshot of the ownership ledger, used to assert the
// exactly-one-release contract.
type Counters struct {
	Allocs         uint64
	Releases       uint64
	DoubleReleases uint64
	Live           int
}

// Strings tracks every string whose ownership crossed the boundary. Each
// Alloc must be matched by exactly one Release; static strings are exempt
// and survive for the process lifetime.
type Strings struct {
	mu      sync.Mutex
	next    Handle
	live    map[Handle]string
	static  map[Handle]string
	counter Counters
}

func NewStrings() *Strings {
	return &Strings{
		live:   make(map[Handle]string),
		static: make(map[Handle]string),
	}
}

// Alloc transfers ownership of value to the caller.
func (s *Strings) Alloc(value string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.live[s.next] = value
	s.counter.Allocs++
	return s.next
}

// AllocStatic registers a string owned by the core itself. It is never
// released; releasing it is a caller bug and is counted as such.
func (s *Strings) AllocStatic(value string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.static[s.next] = value
	return s.next
}

// Get reads the string behind a handle without affecting ownership.
func (s *Strings) Get(h Handle) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.live[h]; ok {
		return v, true
	}
	v, ok := s.static[h]
	return v, ok
}

// Release frees an owned string exactly once. Releasing an unknown, already
// released or static handle is reported false and counted, never fatal.
func (s *Strings) Release(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[h]; !ok {
		s.counter.DoubleReleases++
		return false
	}
	delete(s.live, h)
	s.counter.Releases++
	return true
}

// Counters snapshots the ledger. Live counts only releasable strings.
func (s *Strings) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counter
	c.Live = len(s.live)
	return c
}
