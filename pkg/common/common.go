package common

import (
	"slices"
)

// SubgraphID identifies one provenance batch: all nodes and edges introduced
// or touched by a single merge operation carry the same SubgraphID.
type SubgraphID int64

// Graph is the accumulated labeled property graph. It is the only long-lived
// structure: every merge consumes a PartialGraph and yields the next Graph.
//
// A graph contains:
//   - Nodes: entities such as people, organizations or locations
//   - Edges: directional, labeled relationships between nodes
//   - SubgraphCounter: the source of the next provenance batch id
//
// Node and edge order is insertion order. Ids are unique within a graph.
type Graph struct {
	Nodes           []Node           `json:"nodes"`
	Edges           []Edge           `json:"edges"`
	SubgraphCounter int64            `json:"subgraphCounter"`
	Metadata        map[string]Value `json:"metadata,omitempty"`
}

// Node represents an entity in the graph. Label is a coarse category
// ("Person"), Type the specific subtype used for entity resolution.
//
// Properties must contain a display name under one of the recognized name
// keys. Layout belongs to the rendering side and is never changed by a merge.
type Node struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Type        string       `json:"type"`
	Properties  Properties   `json:"properties"`
	SubgraphIDs []SubgraphID `json:"subgraphIds,omitempty"`
	Layout      *Layout      `json:"layout,omitempty"`
}

// Layout holds render coordinates.
type Layout struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge represents a directional relationship from Source to Target. Both
// endpoints must reference nodes of the same graph.
type Edge struct {
	ID          string       `json:"id"`
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Label       string       `json:"label"`
	Properties  Properties   `json:"properties,omitempty"`
	SubgraphIDs []SubgraphID `json:"subgraphIds,omitempty"`
}

// PartialGraph is the transient output of one extraction call. Its ids are
// local to the extraction and any SubgraphIDs it carries are ignored.
type PartialGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: []Node{},
		Edges: []Edge{},
	}
}

// IsEmpty reports whether g has neither nodes nor edges.
func (g *Graph) IsEmpty() bool {
	return g == nil || (len(g.Nodes) == 0 && len(g.Edges) == 0)
}

// IsEmpty reports whether p carries no nodes and no edges.
func (p PartialGraph) IsEmpty() bool {
	return len(p.Nodes) == 0 && len(p.Edges) == 0
}

// NodeIndex maps node ids to their position in g.Nodes.
func (g *Graph) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i := range g.Nodes {
		idx[g.Nodes[i].ID] = i
	}
	return idx
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	if g == nil {
		return nil, false
	}
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return NewGraph()
	}
	out := &Graph{
		Nodes:           make([]Node, len(g.Nodes)),
		Edges:           make([]Edge, len(g.Edges)),
		SubgraphCounter: g.SubgraphCounter,
	}
	for i := range g.Nodes {
		out.Nodes[i] = g.Nodes[i].Clone()
	}
	for i := range g.Edges {
		out.Edges[i] = g.Edges[i].Clone()
	}
	if g.Metadata != nil {
		out.Metadata = make(map[string]Value, len(g.Metadata))
		for k, v := range g.Metadata {
			out.Metadata[k] = v.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	out := n
	out.Properties = n.Properties.Clone()
	out.SubgraphIDs = slices.Clone(n.SubgraphIDs)
	if n.Layout != nil {
		l := *n.Layout
		out.Layout = &l
	}
	return out
}

// Clone returns a deep copy of e.
func (e Edge) Clone() Edge {
	out := e
	out.Properties = e.Properties.Clone()
	out.SubgraphIDs = slices.Clone(e.SubgraphIDs)
	return out
}

// AddSubgraph tags ids with batch. The set stays sorted and unique; existing
// members are never removed. It reports whether the batch was added.
func AddSubgraph(ids []SubgraphID, batch SubgraphID) ([]SubgraphID, bool) {
	if slices.Contains(ids, batch) {
		return ids, false
	}
	ids = append(ids, batch)
	slices.Sort(ids)
	return ids, true
}

// HasSubgraph reports whether batch is contained in ids.
func HasSubgraph(ids []SubgraphID, batch SubgraphID) bool {
	return slices.Contains(ids, batch)
}
