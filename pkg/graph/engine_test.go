package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(EngineParams{Allocator: NewSequenceAllocator()})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func acmeGraph() *common.Graph {
	g := common.NewGraph()
	g.Nodes = append(g.Nodes, node("n1", "Organization", "Acme Corp"))
	return g
}

func assertNoDanglingEdges(t *testing.T, g *common.Graph) {
	t.Helper()
	idx := g.NodeIndex()
	for _, e := range g.Edges {
		if _, ok := idx[e.Source]; !ok {
			t.Fatalf("edge %s has dangling source %q", e.ID, e.Source)
		}
		if _, ok := idx[e.Target]; !ok {
			t.Fatalf("edge %s has dangling target %q", e.ID, e.Target)
		}
	}
}

func TestApplyWebSearchMergesAndRewritesEdges(t *testing.T) {
	e := newTestEngine(t)
	acc := acmeGraph()

	partial := common.PartialGraph{
		Nodes: []common.Node{
			withProp(node("ws1", "Organization", "Acme Corp"), "founded", common.Number(1947)),
			node("ws2", "Person", "Jane Martinez"),
		},
		Edges: []common.Edge{{ID: "e1", Source: "ws2", Target: "ws1", Label: "LEADS"}},
	}

	got, res, err := e.Apply(acc, partial, ApplyOptions{Anchor: "n1", Source: SourceWebSearch})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if res.Batch != 0 {
		t.Fatalf("Batch = %d, want 0", res.Batch)
	}
	if res.NodesMerged != 1 || res.NodesInserted != 1 || res.EdgesInserted != 1 {
		t.Fatalf("counts = merged %d inserted %d edges %d, want 1/1/1", res.NodesMerged, res.NodesInserted, res.EdgesInserted)
	}
	if res.BridgeEdgeID != "" {
		t.Fatalf("unexpected bridge edge %q", res.BridgeEdgeID)
	}
	if res.Remapping["ws1"] != "n1" {
		t.Fatalf("ws1 remapped to %q, want n1", res.Remapping["ws1"])
	}
	person := res.Remapping["ws2"]
	if person == "" || person == "ws2" {
		t.Fatalf("ws2 remapped to %q, want a fresh id", person)
	}

	n1, _ := got.Node("n1")
	if founded, ok := n1.Properties["founded"].AsNumber(); !ok || founded != 1947 {
		t.Fatalf("n1.founded = %v, want 1947", n1.Properties["founded"])
	}
	if !reflect.DeepEqual(n1.SubgraphIDs, []common.SubgraphID{0}) {
		t.Fatalf("n1.SubgraphIDs = %v, want [0]", n1.SubgraphIDs)
	}
	jane, ok := got.Node(person)
	if !ok {
		t.Fatalf("person node %q missing", person)
	}
	if !reflect.DeepEqual(jane.SubgraphIDs, []common.SubgraphID{0}) {
		t.Fatalf("person SubgraphIDs = %v, want [0]", jane.SubgraphIDs)
	}

	if len(got.Edges) != 1 {
		t.Fatalf("got %d edges, want 1: %+v", len(got.Edges), got.Edges)
	}
	edge := got.Edges[0]
	if edge.Source != person || edge.Target != "n1" || edge.Label != "LEADS" {
		t.Fatalf("edge = %s -%s-> %s, want %s -LEADS-> n1", edge.Source, edge.Label, edge.Target, person)
	}
	if edge.Label == ExpandedToLabel {
		t.Fatal("synthetic edge added although connected")
	}
	if got.SubgraphCounter != 1 {
		t.Fatalf("SubgraphCounter = %d, want 1", got.SubgraphCounter)
	}

	// the input accumulator is untouched
	if len(acc.Nodes) != 1 || len(acc.Edges) != 0 || acc.SubgraphCounter != 0 {
		t.Fatalf("input accumulator modified: %+v", acc)
	}
	if _, ok := acc.Nodes[0].Properties["founded"]; ok {
		t.Fatal("input accumulator node modified")
	}
	assertNoDanglingEdges(t, got)
}

func TestApplyAnchoredSynthesizesBridge(t *testing.T) {
	e := newTestEngine(t)
	acc := acmeGraph()

	partial := common.PartialGraph{
		Nodes: []common.Node{node("ws3", "Location", "Phoenix")},
	}
	got, res, err := e.Apply(acc, partial, ApplyOptions{Anchor: "n1", Source: SourceWebSearch})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	phoenix := res.Remapping["ws3"]
	if res.NodesInserted != 1 {
		t.Fatalf("NodesInserted = %d, want 1", res.NodesInserted)
	}
	if res.BridgeEdgeID == "" {
		t.Fatal("expected a bridge edge")
	}
	if len(got.Edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(got.Edges))
	}
	bridge := got.Edges[0]
	if bridge.ID != res.BridgeEdgeID || bridge.Source != "n1" || bridge.Target != phoenix || bridge.Label != ExpandedToLabel {
		t.Fatalf("bridge = %+v", bridge)
	}
	if synthetic, _ := bridge.Properties["synthetic"].AsBool(); !synthetic {
		t.Fatal("bridge edge not marked synthetic")
	}
	n1, _ := got.Node("n1")
	if !common.HasSubgraph(n1.SubgraphIDs, res.Batch) {
		t.Fatalf("anchor not tagged with batch %d: %v", res.Batch, n1.SubgraphIDs)
	}
	if !common.HasSubgraph(bridge.SubgraphIDs, res.Batch) {
		t.Fatalf("bridge not tagged with batch %d", res.Batch)
	}
	if !reachableTo(got, "n1", phoenix) {
		t.Fatal("anchor does not reach new node")
	}
}

func TestApplyAnchoredMergeIntoAnchorStillBridges(t *testing.T) {
	e := newTestEngine(t)

	partial := common.PartialGraph{
		Nodes: []common.Node{
			node("ws1", "Organization", "Acme Corp"),
			node("ws3", "Location", "Phoenix"),
		},
	}
	got, res, err := e.Apply(acmeGraph(), partial, ApplyOptions{Anchor: "n1", Source: SourceWebSearch})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if res.Remapping["ws1"] != "n1" || res.NodesMerged != 1 || res.NodesInserted != 1 {
		t.Fatalf("remapping = %v merged %d inserted %d", res.Remapping, res.NodesMerged, res.NodesInserted)
	}
	phoenix := res.Remapping["ws3"]
	if res.BridgeEdgeID == "" {
		t.Fatal("expected a bridge edge to the inserted node")
	}
	if len(got.Edges) != 1 || got.Edges[0].Source != "n1" || got.Edges[0].Target != phoenix {
		t.Fatalf("edges = %+v, want n1 -> %s", got.Edges, phoenix)
	}
	if !reachableTo(got, "n1", phoenix) {
		t.Fatal("anchor does not reach inserted node")
	}
}

func TestApplyAnchoredBridgesToMergedNodeWithoutInserts(t *testing.T) {
	e := newTestEngine(t)
	acc := acmeGraph()
	acc.Nodes = append(acc.Nodes, node("n2", "Location", "Phoenix"))

	partial := common.PartialGraph{
		Nodes: []common.Node{withProp(node("ws1", "Location", "Phoenix"), "state", common.String("Arizona"))},
	}
	got, res, err := e.Apply(acc, partial, ApplyOptions{Anchor: "n1", Source: SourceWebSearch})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NodesInserted != 0 || res.NodesMerged != 1 {
		t.Fatalf("inserted %d merged %d, want 0/1", res.NodesInserted, res.NodesMerged)
	}
	if len(got.Edges) != 1 || got.Edges[0].Source != "n1" || got.Edges[0].Target != "n2" {
		t.Fatalf("edges = %+v, want n1 -> n2", got.Edges)
	}
}

func TestBridgeCandidates(t *testing.T) {
	res := &MergeResult{
		InsertedNodeIDs: []string{"ws0-n1", "ws0-n2"},
		TouchedNodeIDs:  []string{"n1", "ws0-n1", "n7", "ws0-n2"},
	}
	got := bridgeCandidates(res, "n1")
	want := []string{"ws0-n1", "ws0-n2", "n7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bridgeCandidates() = %v, want %v", got, want)
	}
}

func TestApplyTypeVetoIsCaseSensitive(t *testing.T) {
	e := newTestEngine(t)
	acc := common.NewGraph()
	acc.Nodes = append(acc.Nodes, node("n1", "Person", "Jane Martinez"))

	partial := common.PartialGraph{Nodes: []common.Node{node("x", "person", "Jane Martinez")}}
	got, res, err := e.Apply(acc, partial, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NodesMerged != 0 || res.NodesInserted != 1 || len(got.Nodes) != 2 {
		t.Fatalf("merged %d inserted %d nodes %d, want a separate node", res.NodesMerged, res.NodesInserted, len(got.Nodes))
	}
}

func reachableTo(g *common.Graph, from, to string) bool {
	_, ok := reachableFrom(g, from)[to]
	return ok
}

func TestApplyUnanchoredNeverBridges(t *testing.T) {
	e := newTestEngine(t)
	partial := common.PartialGraph{Nodes: []common.Node{node("x", "Location", "Phoenix")}}
	got, res, err := e.Apply(acmeGraph(), partial, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.BridgeEdgeID != "" || len(got.Edges) != 0 {
		t.Fatalf("unanchored merge added edges: %+v", got.Edges)
	}
}

func TestApplyEmptyPartialIsNoop(t *testing.T) {
	e := newTestEngine(t)
	acc := acmeGraph()
	acc.SubgraphCounter = 4
	before := acc.Clone()

	got, res, err := e.Apply(acc, common.PartialGraph{}, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != acc {
		t.Fatal("empty merge returned a different graph")
	}
	if !reflect.DeepEqual(got, before) {
		t.Fatalf("graph changed: %+v", got)
	}
	if res.Batch != NoBatch {
		t.Fatalf("Batch = %d, want NoBatch", res.Batch)
	}
}

func TestApplyErrorsLeaveAccumulatorUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		partial common.PartialGraph
		opts    ApplyOptions
		wantErr error
	}{
		{
			name:    "unknown anchor",
			partial: common.PartialGraph{Nodes: []common.Node{node("x", "Person", "Jane")}},
			opts:    ApplyOptions{Anchor: "missing"},
			wantErr: ErrUnknownAnchor,
		},
		{
			name:    "unknown anchor with empty partial",
			partial: common.PartialGraph{},
			opts:    ApplyOptions{Anchor: "missing"},
			wantErr: ErrUnknownAnchor,
		},
		{
			name: "edge to unknown node",
			partial: common.PartialGraph{
				Nodes: []common.Node{node("x", "Person", "Jane")},
				Edges: []common.Edge{{Source: "x", Target: "ghost", Label: "KNOWS"}},
			},
			wantErr: ErrMalformedPartialGraph,
		},
		{
			name: "duplicate incoming ids",
			partial: common.PartialGraph{
				Nodes: []common.Node{node("x", "Person", "Jane"), node("x", "Person", "John")},
			},
			wantErr: ErrMalformedPartialGraph,
		},
		{
			name: "node without display name",
			partial: common.PartialGraph{
				Nodes: []common.Node{{ID: "x", Type: "Person", Properties: common.Properties{"age": common.Number(3)}}},
			},
			wantErr: ErrMalformedPartialGraph,
		},
		{
			name: "edge with empty endpoint",
			partial: common.PartialGraph{
				Nodes: []common.Node{node("x", "Person", "Jane")},
				Edges: []common.Edge{{Source: "x", Label: "KNOWS"}},
			},
			wantErr: ErrMalformedPartialGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			acc := acmeGraph()
			before := acc.Clone()

			got, res, err := e.Apply(acc, tt.partial, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Fatalf("expected nil result, got %+v", res)
			}
			if got != acc || !reflect.DeepEqual(acc, before) {
				t.Fatalf("accumulator changed: %+v", acc)
			}
		})
	}
}

func TestApplyEdgeToExistingNode(t *testing.T) {
	e := newTestEngine(t)
	partial := common.PartialGraph{
		Nodes: []common.Node{node("c1", "Person", "Jane Martinez")},
		Edges: []common.Edge{{Source: "c1", Target: "n1", Label: "WORKS_AT"}},
	}
	got, _, err := e.Apply(acmeGraph(), partial, ApplyOptions{Source: SourceCollaborator})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(got.Edges) != 1 || got.Edges[0].Target != "n1" {
		t.Fatalf("edges = %+v", got.Edges)
	}
	assertNoDanglingEdges(t, got)
}

func TestApplyExistingPropertiesWin(t *testing.T) {
	e := newTestEngine(t)
	acc := acmeGraph()
	acc.Nodes[0].Properties["founded"] = common.Number(1947)

	partial := common.PartialGraph{Nodes: []common.Node{
		withProp(withProp(node("x", "Organization", "Acme Corp"), "founded", common.Number(1950)), "city", common.String("Phoenix")),
	}}
	got, res, err := e.Apply(acc, partial, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NodesMerged != 1 {
		t.Fatalf("NodesMerged = %d, want 1", res.NodesMerged)
	}
	n1, _ := got.Node("n1")
	if v, _ := n1.Properties["founded"].AsNumber(); v != 1947 {
		t.Fatalf("founded = %v, want existing 1947", v)
	}
	if v, _ := n1.Properties["city"].AsString(); v != "Phoenix" {
		t.Fatalf("city = %q, want Phoenix", v)
	}
}

func TestApplySeedReplacesEmptyAccumulator(t *testing.T) {
	e := newTestEngine(t)
	partial := common.PartialGraph{
		Nodes: []common.Node{node("a", "Person", "Jane"), node("b", "Person", "Jane")},
		Edges: []common.Edge{{Source: "a", Target: "b", Label: "KNOWS"}},
	}
	got, res, err := e.Apply(nil, partial, ApplyOptions{Seed: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// intra-batch duplicates still collapse
	if res.NodesInserted != 1 || res.NodesMerged != 1 {
		t.Fatalf("inserted %d merged %d, want 1/1", res.NodesInserted, res.NodesMerged)
	}
	if len(got.Nodes) != 1 || len(got.Edges) != 1 {
		t.Fatalf("graph = %d nodes %d edges", len(got.Nodes), len(got.Edges))
	}
	if got.Edges[0].Source != got.Edges[0].Target {
		t.Fatalf("expected a self loop, got %+v", got.Edges[0])
	}
}

func TestApplySequenceInvariants(t *testing.T) {
	e := newTestEngine(t)
	partials := []common.PartialGraph{
		{
			Nodes: []common.Node{node("a", "Person", "Jane Martinez"), node("b", "Organization", "Acme Corp")},
			Edges: []common.Edge{{Source: "a", Target: "b", Label: "LEADS"}},
		},
		{},
		{
			Nodes: []common.Node{node("a", "Organization", "ACME corp"), node("b", "Location", "Phoenix")},
			Edges: []common.Edge{{Source: "a", Target: "b", Label: "LOCATED_IN"}},
		},
		{
			Nodes: []common.Node{node("p", "Person", "jane martinez"), node("q", "Person", "John Doe")},
			Edges: []common.Edge{{Source: "q", Target: "p", Label: "KNOWS"}},
		},
	}

	acc := common.NewGraph()
	history := map[string][]common.SubgraphID{}
	var lastBatch common.SubgraphID = NoBatch
	for i, p := range partials {
		next, res, err := e.Apply(acc, p, ApplyOptions{})
		if err != nil {
			t.Fatalf("merge %d: %v", i, err)
		}
		if res.Batch != NoBatch {
			if res.Batch <= lastBatch {
				t.Fatalf("merge %d: batch %d not greater than %d", i, res.Batch, lastBatch)
			}
			lastBatch = res.Batch
		}
		assertNoDanglingEdges(t, next)
		for _, n := range next.Nodes {
			for _, old := range history[n.ID] {
				if !common.HasSubgraph(n.SubgraphIDs, old) {
					t.Fatalf("merge %d: node %s lost batch %d", i, n.ID, old)
				}
			}
			history[n.ID] = append([]common.SubgraphID(nil), n.SubgraphIDs...)
		}
		acc = next
	}

	if len(acc.Nodes) != 4 {
		t.Fatalf("got %d nodes, want 4: %+v", len(acc.Nodes), acc.Nodes)
	}
	if acc.SubgraphCounter != 3 {
		t.Fatalf("SubgraphCounter = %d, want 3", acc.SubgraphCounter)
	}
	jane := acc.Nodes[0]
	if !reflect.DeepEqual(jane.SubgraphIDs, []common.SubgraphID{0, 2}) {
		t.Fatalf("jane SubgraphIDs = %v, want [0 2]", jane.SubgraphIDs)
	}

	members := MembersOf(acc, 1)
	if len(members.NodeIDs) != 2 || len(members.EdgeIDs) != 1 {
		t.Fatalf("MembersOf(1) = %+v", members)
	}
}
