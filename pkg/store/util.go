package store

import (
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// Encode serializes g for storage.
func Encode(g *common.Graph) ([]byte, error) {
	if g == nil {
		g = common.NewGraph()
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot and checks its integrity.
func Decode(data []byte) (*common.Graph, error) {
	var g common.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if g.Nodes == nil {
		g.Nodes = []common.Node{}
	}
	if g.Edges == nil {
		g.Edges = []common.Edge{}
	}
	if err := Check(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Check verifies that node ids and edge ids are unique, that no edge
// dangles and that every batch tag is below the subgraph counter.
func Check(g *common.Graph) error {
	if g == nil {
		return nil
	}
	checkTags := func(kind, id string, tags []common.SubgraphID) error {
		for _, tag := range tags {
			if tag < 0 || int64(tag) >= g.SubgraphCounter {
				return fmt.Errorf("%w: %s %s carries batch %d, counter is %d", ErrCorrupt, kind, id, tag, g.SubgraphCounter)
			}
		}
		return nil
	}

	nodes := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := nodes[n.ID]; dup || n.ID == "" {
			return fmt.Errorf("%w: duplicate or empty node id %q", ErrCorrupt, n.ID)
		}
		nodes[n.ID] = struct{}{}
		if err := checkTags("node", n.ID, n.SubgraphIDs); err != nil {
			return err
		}
	}

	edges := make(map[string]struct{}, len(g.Edges))
	for _, e := range g.Edges {
		if _, dup := edges[e.ID]; dup || e.ID == "" {
			return fmt.Errorf("%w: duplicate or empty edge id %q", ErrCorrupt, e.ID)
		}
		edges[e.ID] = struct{}{}
		if _, ok := nodes[e.Source]; !ok {
			return fmt.Errorf("%w: edge %s has dangling source %q", ErrCorrupt, e.ID, e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return fmt.Errorf("%w: edge %s has dangling target %q", ErrCorrupt, e.ID, e.Target)
		}
		if err := checkTags("edge", e.ID, e.SubgraphIDs); err != nil {
			return err
		}
	}
	return nil
}
