package scanner

import (
	"sync"

	"quantumscan/port"
)

// Store owns the per-port results. One coarse lock guards the whole
// map: mutations are short writes, and all the time goes to network
// waits, so finer granularity buys nothing.
type Store struct {
	mu sync.Mutex
	m  map[uint16]*port.PortResult
}

// NewStore pre-creates an empty record for every requested port, so a
// scan of N ports always yields N results regardless of outcomes.
func NewStore(ports []uint16) *Store {
	s := &Store{m: make(map[uint16]*port.PortResult, len(ports))}
	for _, p := range ports {
		s.m[p] = port.NewPortResult(p)
	}
	return s
}

// Update runs fn against the record for p under the lock.
func (s *Store) Update(p uint16, fn func(*port.PortResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.m[p]; ok {
		fn(r)
	}
}

// SetTCPState records a technique verdict for p.
func (s *Store) SetTCPState(p uint16, t port.Technique, state string) {
	s.Update(p, func(r *port.PortResult) { r.TCPStates[t] = state })
}

// SetUDPState records the UDP technique verdict.
func (s *Store) SetUDPState(p uint16, state string) {
	s.Update(p, func(r *port.PortResult) { r.UDPState = state })
}

// SetFiltering records the ACK technique verdict.
func (s *Store) SetFiltering(p uint16, state string) {
	s.Update(p, func(r *port.PortResult) { r.Filtering = state })
}

// SetOSGuess records an OS fingerprint. Last write wins.
func (s *Store) SetOSGuess(p uint16, guess string) {
	s.Update(p, func(r *port.PortResult) { r.OSGuess = guess })
}

// Open reports the aggregate open invariant for p.
func (s *Store) Open(p uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[p]
	return ok && r.Open()
}

// Get returns a point-in-time view of one record. The caller must not
// retain the pointer across further scanning; Results gives the final
// frozen view.
func (s *Store) Get(p uint16) *port.PortResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[p]
}

// Results hands the mapping over once scanning is complete.
func (s *Store) Results() map[uint16]*port.PortResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint16]*port.PortResult, len(s.m))
	for p, r := range s.m {
		out[p] = r
	}
	return out
}
