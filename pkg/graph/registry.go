package graph

import (
	"slices"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// NoBatch is reported for operations that did not allocate a batch, such as
// merging an empty partial graph.
const NoBatch common.SubgraphID = -1

// NextBatch allocates the next provenance batch id from g's counter and
// returns it together with a graph whose counter has been incremented.
// The returned graph shares node and edge storage with g; callers that
// mutate it must clone first.
func NextBatch(g *common.Graph) (common.SubgraphID, *common.Graph) {
	if g == nil {
		g = common.NewGraph()
	}
	batch := common.SubgraphID(g.SubgraphCounter)
	next := *g
	next.SubgraphCounter++
	return batch, &next
}

// Members lists the nodes and edges tagged with one batch.
type Members struct {
	NodeIDs []string `json:"nodeIds"`
	EdgeIDs []string `json:"edgeIds"`
}

// MembersOf scans g for nodes and edges tagged with batch. The result is
// derived from the subgraph tags alone, there is no separate index.
func MembersOf(g *common.Graph, batch common.SubgraphID) Members {
	m := Members{NodeIDs: []string{}, EdgeIDs: []string{}}
	if g == nil {
		return m
	}
	for i := range g.Nodes {
		if common.HasSubgraph(g.Nodes[i].SubgraphIDs, batch) {
			m.NodeIDs = append(m.NodeIDs, g.Nodes[i].ID)
		}
	}
	for i := range g.Edges {
		if common.HasSubgraph(g.Edges[i].SubgraphIDs, batch) {
			m.EdgeIDs = append(m.EdgeIDs, g.Edges[i].ID)
		}
	}
	return m
}

// Batches returns the distinct batch ids present in g, ascending.
func Batches(g *common.Graph) []common.SubgraphID {
	if g == nil {
		return nil
	}
	seen := make(map[common.SubgraphID]struct{})
	for i := range g.Nodes {
		for _, id := range g.Nodes[i].SubgraphIDs {
			seen[id] = struct{}{}
		}
	}
	for i := range g.Edges {
		for _, id := range g.Edges[i].SubgraphIDs {
			seen[id] = struct{}{}
		}
	}
	out := make([]common.SubgraphID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
