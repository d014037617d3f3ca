package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

func TestAccumulatorConcurrentApply(t *testing.T) {
	e, err := NewEngine(EngineParams{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	acc := NewAccumulator(e, nil)
	ctx := context.Background()

	// every collaborator adds the same organization plus one person of its own
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			partial := common.PartialGraph{
				Nodes: []common.Node{
					node("org", "Organization", "Acme Corp"),
					node("p", "Person", fmt.Sprintf("Person %d", i)),
				},
				Edges: []common.Edge{{Source: "p", Target: "org", Label: "WORKS_AT"}},
			}
			if _, err := acc.Apply(ctx, partial, ApplyOptions{Source: SourceCollaborator}); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	g, err := acc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	orgs := 0
	for _, n := range g.Nodes {
		if n.Type == "Organization" {
			orgs++
		}
	}
	if orgs != 1 {
		t.Fatalf("got %d organization nodes, want 1", orgs)
	}
	if len(g.Nodes) != 17 || len(g.Edges) != 16 {
		t.Fatalf("graph has %d nodes and %d edges, want 17 and 16", len(g.Nodes), len(g.Edges))
	}
	if g.SubgraphCounter != 16 {
		t.Fatalf("SubgraphCounter = %d, want 16", g.SubgraphCounter)
	}
	assertNoDanglingEdges(t, g)
}

func TestAccumulatorSnapshotIsCopy(t *testing.T) {
	e, _ := NewEngine(EngineParams{Allocator: NewSequenceAllocator()})
	acc := NewAccumulator(e, acmeGraph())
	ctx := context.Background()

	snap, _ := acc.Snapshot(ctx)
	snap.Nodes[0].Properties["name"] = common.String("Changed")

	again, _ := acc.Snapshot(ctx)
	if name, _ := again.Nodes[0].Properties["name"].AsString(); name != "Acme Corp" {
		t.Fatalf("snapshot mutation leaked: %q", name)
	}
}

func TestAccumulatorFailedApplyKeepsState(t *testing.T) {
	e, _ := NewEngine(EngineParams{Allocator: NewSequenceAllocator()})
	acc := NewAccumulator(e, acmeGraph())
	ctx := context.Background()

	_, err := acc.Apply(ctx, common.PartialGraph{Nodes: []common.Node{node("x", "Person", "X")}}, ApplyOptions{Anchor: "nope"})
	if !errors.Is(err, ErrUnknownAnchor) {
		t.Fatalf("error = %v, want ErrUnknownAnchor", err)
	}
	g, _ := acc.Snapshot(ctx)
	if len(g.Nodes) != 1 || g.SubgraphCounter != 0 {
		t.Fatalf("state changed after failure: %+v", g)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := acc.Apply(canceled, common.PartialGraph{Nodes: []common.Node{node("x", "Person", "X")}}, ApplyOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
