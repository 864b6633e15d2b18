package relsync

import (
	"sort"
	"sync"
)

// Store maps target user ids to the viewer's edge. It is the single source of
// truth for rendering. Status and generation always change together.
type Store struct {
	mu    sync.RWMutex
	edges map[string]Edge
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{edges: make(map[string]Edge)}
}

// Get returns the edge for targetID, creating a NotFollowing edge on first use.
func (s *Store) Get(targetID string) Edge {
	s.mu.RLock()
	e, ok := s.edges[targetID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.edges[targetID]; ok {
		return e
	}
	e = Edge{TargetID: targetID, Status: NotFollowing}
	s.edges[targetID] = e
	return e
}

// Lookup returns the edge without creating it.
func (s *Store) Lookup(targetID string) (Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[targetID]
	return e, ok
}

// Set overwrites status and generation of the edge as one unit.
func (s *Store) Set(targetID string, status Status, generation uint64) Edge {
	e := Edge{TargetID: targetID, Status: status, Generation: generation}
	s.mu.Lock()
	s.edges[targetID] = e
	s.mu.Unlock()
	return e
}

// Forget discards the edge. It reports whether an edge was present.
func (s *Store) Forget(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edges[targetID]
	delete(s.edges, targetID)
	return ok
}

// Len returns the number of edges held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Snapshot returns a copy of all edges ordered by target id.
func (s *Store) Snapshot() []Edge {
	s.mu.RLock()
	out := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}
