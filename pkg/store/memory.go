package store

import (
	"context"
	"sync"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// MemoryStore keeps snapshots in process memory. Stored graphs are deep
// copies, callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]*common.Graph
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{graphs: make(map[string]*common.Graph)}
}

func (s *MemoryStore) Load(ctx context.Context, graphID string) (*common.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[graphID]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, graphID string, g *common.Graph) error {
	if g == nil {
		g = common.NewGraph()
	}
	if err := Check(g); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[graphID] = g.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.graphs, graphID)
	return nil
}
