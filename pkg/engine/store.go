package engine

import (
	"sync"

	"github.com/aeolun/tower/pkg/protocol"
)

// Store is the append-only log of received envelopes, in arrival order.
// Entries are never reordered, rewritten or deduplicated.
type Store struct {
	mu        sync.RWMutex
	entries   []protocol.Envelope
	malformed int
}

func NewStore() *Store {
	return &Store{}
}

// Append extends the log with batch, in order, and returns the new length
func (s *Store) Append(batch ...protocol.Envelope) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, env := range batch {
		if _, ok := env.(protocol.Malformed); ok {
			s.malformed++
		}
	}
	s.entries = append(s.entries, batch...)
	return len(s.entries)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MalformedCount returns how many stored entries failed to parse
func (s *Store) MalformedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.malformed
}

// Snapshot returns a copy of every entry
func (s *Store) Snapshot() []protocol.Envelope {
	return s.Since(0)
}

// Since returns a copy of the entries from index i on
func (s *Store) Since(i int) []protocol.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 {
		i = 0
	}
	if i >= len(s.entries) {
		return nil
	}
	out := make([]protocol.Envelope, len(s.entries)-i)
	copy(out, s.entries[i:])
	return out
}
