package run

import (
	"sync"

	"modelsynth/internal/ir"
)

// ResultSet accumulates tuples by structural key, keeping first-seen order.
// It is safe for concurrent use.
type ResultSet struct {
	mu     sync.Mutex
	keys   map[string]struct{}
	tuples []ir.Tuple
}

// NewResultSet returns an empty set.
func NewResultSet() *ResultSet {
	return &ResultSet{keys: make(map[string]struct{})}
}

// Add inserts tuples and returns how many were new.
func (s *ResultSet) Add(tuples ...ir.Tuple) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, t := range tuples {
		k := t.Key()
		if _, ok := s.keys[k]; ok {
			continue
		}
		s.keys[k] = struct{}{}
		s.tuples = append(s.tuples, t)
		added++
	}
	return added
}

// Contains reports whether an equal tuple is in the set.
func (s *ResultSet) Contains(t ir.Tuple) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[t.Key()]
	return ok
}

// Len returns the number of unique tuples.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tuples)
}

// Tuples returns the unique tuples in insertion order.
func (s *ResultSet) Tuples() []ir.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.Tuple(nil), s.tuples...)
}
