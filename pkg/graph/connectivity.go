package graph

import (
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// ExpandedToLabel is the reserved relationship type of synthesized bridge
// edges.
const ExpandedToLabel = "EXPANDED_TO"

// EnsureConnected makes sure the anchor node reaches at least one of the
// newly merged nodes. If no path exists, exactly one edge
// anchor -EXPANDED_TO-> newIDs[0] is added to g, tagged with ns.Batch; the
// anchor is tagged with the batch as well. The returned edge is nil when the
// graph already was connected or newIDs is empty.
//
// Paths are searched without regard to edge direction. g is modified in
// place and returned.
func EnsureConnected(
	g *common.Graph,
	anchorID string,
	newIDs []string,
	ns Namespace,
	alloc IdentifierAllocator,
) (*common.Graph, *common.Edge, error) {
	anchor, ok := g.Node(anchorID)
	if !ok {
		return g, nil, fmt.Errorf("%w: %q", ErrUnknownAnchor, anchorID)
	}
	if len(newIDs) == 0 {
		return g, nil, nil
	}

	reachable := reachableFrom(g, anchorID)
	for _, id := range newIDs {
		if _, ok := reachable[id]; ok {
			return g, nil, nil
		}
	}

	target := newIDs[0]
	if _, ok := g.Node(target); !ok {
		return g, nil, fmt.Errorf("%w: bridge target %q does not exist", ErrMalformedPartialGraph, target)
	}

	used := make(map[string]struct{}, len(g.Edges))
	for i := range g.Edges {
		used[g.Edges[i].ID] = struct{}{}
	}
	for i := range g.Nodes {
		used[g.Nodes[i].ID] = struct{}{}
	}
	id, err := allocateUnique(alloc.EdgeID, ns, used)
	if err != nil {
		return g, nil, err
	}

	anchor.SubgraphIDs, _ = common.AddSubgraph(anchor.SubgraphIDs, ns.Batch)
	g.Edges = append(g.Edges, common.Edge{
		ID:     id,
		Source: anchorID,
		Target: target,
		Label:  ExpandedToLabel,
		Properties: common.Properties{
			"synthetic": common.Bool(true),
		},
		SubgraphIDs: []common.SubgraphID{ns.Batch},
	})
	edge := g.Edges[len(g.Edges)-1]
	return g, &edge, nil
}

// reachableFrom returns the ids of all nodes in the undirected component of
// start, start included.
func reachableFrom(g *common.Graph, start string) map[string]struct{} {
	adj := make(map[string][]string, len(g.Nodes))
	for i := range g.Edges {
		e := &g.Edges[i]
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}

	seen := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return seen
}
