package workflow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps workflow documents in process memory. It backs the
// service when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Graph
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Graph)}
}

// Get returns a copy of the stored workflow, or nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

// Save stores the workflow, stamping creation and update times.
func (s *MemoryStore) Save(_ context.Context, g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *g
	now := time.Now().UTC()
	if prev, ok := s.items[g.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.items[g.ID] = &cp
	return nil
}

// List returns summaries ordered by most recent update.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.items))
	for _, g := range s.items {
		out = append(out, Summary{ID: g.ID, Name: g.Name, NodeCount: len(g.Nodes), UpdatedAt: g.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}
