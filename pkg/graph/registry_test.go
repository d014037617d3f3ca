package graph

import (
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

func TestNextBatch(t *testing.T) {
	g := common.NewGraph()
	for want := common.SubgraphID(0); want < 3; want++ {
		batch, next := NextBatch(g)
		if batch != want {
			t.Fatalf("batch = %d, want %d", batch, want)
		}
		if next.SubgraphCounter != int64(want)+1 {
			t.Fatalf("counter = %d, want %d", next.SubgraphCounter, want+1)
		}
		if g.SubgraphCounter != int64(want) {
			t.Fatalf("input counter changed to %d", g.SubgraphCounter)
		}
		g = next
	}
}

func TestMembersOfAndBatches(t *testing.T) {
	g := &common.Graph{
		Nodes: []common.Node{
			{ID: "a", SubgraphIDs: []common.SubgraphID{0, 2}},
			{ID: "b", SubgraphIDs: []common.SubgraphID{1}},
			{ID: "c"},
		},
		Edges: []common.Edge{
			{ID: "e1", Source: "a", Target: "b", SubgraphIDs: []common.SubgraphID{2}},
		},
	}

	tests := []struct {
		batch common.SubgraphID
		want  Members
	}{
		{batch: 0, want: Members{NodeIDs: []string{"a"}, EdgeIDs: []string{}}},
		{batch: 2, want: Members{NodeIDs: []string{"a"}, EdgeIDs: []string{"e1"}}},
		{batch: 7, want: Members{NodeIDs: []string{}, EdgeIDs: []string{}}},
	}
	for _, tt := range tests {
		if got := MembersOf(g, tt.batch); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("MembersOf(%d) = %+v, want %+v", tt.batch, got, tt.want)
		}
	}

	if got := Batches(g); !reflect.DeepEqual(got, []common.SubgraphID{0, 1, 2}) {
		t.Fatalf("Batches() = %v", got)
	}
}

func TestSequenceAllocator(t *testing.T) {
	a := NewSequenceAllocator()
	ns := Namespace{Source: SourceWebSearch, Batch: 3}

	n1, _ := a.NodeID(ns)
	n2, _ := a.NodeID(ns)
	e1, _ := a.EdgeID(ns)
	other, _ := a.NodeID(Namespace{Source: SourceSegment, Batch: 3})

	got := []string{n1, n2, e1, other}
	want := []string{"ws3-n1", "ws3-n2", "ws3-e1", "seg3-n1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestNanoidAllocator(t *testing.T) {
	a := NewNanoidAllocator(0)
	ns := Namespace{Source: SourceCollaborator, Batch: 5}

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id, err := a.NodeID(ns)
		if err != nil {
			t.Fatalf("NodeID() error = %v", err)
		}
		if !strings.HasPrefix(id, "collab5-n-") || len(id) != len("collab5-n-")+defaultNanoidSize {
			t.Fatalf("unexpected id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

type fixedAllocator struct{ id string }

func (f fixedAllocator) NodeID(Namespace) (string, error) { return f.id, nil }
func (f fixedAllocator) EdgeID(Namespace) (string, error) { return f.id, nil }

func TestAllocateUniqueGivesUp(t *testing.T) {
	used := map[string]struct{}{"taken": {}}
	alloc := fixedAllocator{id: "taken"}
	if _, err := allocateUnique(alloc.NodeID, Namespace{}, used); err == nil {
		t.Fatal("expected an error when every id is taken")
	}
}
