package graph

import (
	"context"
	"sync"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// Target is a merge destination holding one logical graph. Implementations
// serialize Apply calls for that graph.
type Target interface {
	Apply(ctx context.Context, partial common.PartialGraph, opts ApplyOptions) (*MergeResult, error)
	Snapshot(ctx context.Context) (*common.Graph, error)
}

// Accumulator owns one in-process graph and applies merges to it one at a
// time. Readers get deep copies, so no uncommitted state is ever visible.
type Accumulator struct {
	mu     sync.Mutex
	engine *Engine
	graph  *common.Graph
}

// NewAccumulator returns an Accumulator starting from g. A nil g starts
// from an empty graph. The accumulator takes ownership of g.
func NewAccumulator(engine *Engine, g *common.Graph) *Accumulator {
	if g == nil {
		g = common.NewGraph()
	}
	return &Accumulator{engine: engine, graph: g}
}

// Apply merges partial into the accumulator. The merge itself is not
// cancellable; ctx is only checked before the lock is taken.
func (a *Accumulator) Apply(ctx context.Context, partial common.PartialGraph, opts ApplyOptions) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next, result, err := a.engine.Apply(a.graph, partial, opts)
	if err != nil {
		return nil, err
	}
	a.graph = next
	return result, nil
}

// Snapshot returns a deep copy of the current graph.
func (a *Accumulator) Snapshot(ctx context.Context) (*common.Graph, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph.Clone(), nil
}

// MembersOf lists the nodes and edges tagged with batch.
func (a *Accumulator) MembersOf(batch common.SubgraphID) Members {
	a.mu.Lock()
	defer a.mu.Unlock()
	return MembersOf(a.graph, batch)
}
