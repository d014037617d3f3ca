package graph

import (
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// MergeResult describes what one merge operation did to the accumulator.
type MergeResult struct {
	Batch  common.SubgraphID `json:"batch"`
	Source Source            `json:"source"`

	NodesInserted int `json:"nodesInserted"`
	NodesMerged   int `json:"nodesMerged"`
	EdgesInserted int `json:"edgesInserted"`

	// InsertedNodeIDs are the fresh ids of inserted nodes, in incoming order.
	InsertedNodeIDs []string `json:"insertedNodeIds"`
	// TouchedNodeIDs are all accumulator nodes inserted or merged into, in
	// incoming order without repetition.
	TouchedNodeIDs []string `json:"touchedNodeIds"`
	EdgeIDs        []string `json:"edgeIds"`
	// BridgeEdgeID is set when an anchored merge had to synthesize a
	// connecting edge.
	BridgeEdgeID string `json:"bridgeEdgeId,omitempty"`

	// Remapping maps every incoming node id to its id in the accumulator.
	Remapping map[string]string `json:"remapping"`
	Decisions []Decision        `json:"decisions"`
}

func emptyResult(source Source) *MergeResult {
	return &MergeResult{
		Batch:           NoBatch,
		Source:          source,
		InsertedNodeIDs: []string{},
		TouchedNodeIDs:  []string{},
		EdgeIDs:         []string{},
		Remapping:       map[string]string{},
		Decisions:       []Decision{},
	}
}

// Merge folds partial into acc according to res and returns the new
// accumulator. acc itself is never modified: on error the caller still holds
// the unchanged accumulator.
//
// Inserted nodes get fresh ids from alloc in namespace ns and are tagged with
// ns.Batch. Merged nodes receive the incoming properties for keys they do not
// have yet; existing values win on conflicts. Every incoming edge is rewritten
// through the final remapping, gets a fresh id and the batch tag. Edges whose
// endpoints resolve to no node fail the whole merge with
// ErrMalformedPartialGraph.
func Merge(
	acc *common.Graph,
	partial common.PartialGraph,
	res Resolution,
	ns Namespace,
	alloc IdentifierAllocator,
) (*common.Graph, *MergeResult, error) {
	if acc == nil {
		acc = common.NewGraph()
	}
	if partial.IsEmpty() {
		return acc, emptyResult(ns.Source), nil
	}

	existing := acc.NodeIndex()
	incoming := make(map[string]*common.Node, len(partial.Nodes))
	for i := range partial.Nodes {
		incoming[partial.Nodes[i].ID] = &partial.Nodes[i]
	}

	for _, d := range res.Decisions {
		if _, ok := incoming[d.IncomingID]; !ok {
			return acc, nil, fmt.Errorf("%w: decision for unknown incoming node %q", ErrMalformedPartialGraph, d.IncomingID)
		}
	}
	if len(res.Decisions) != len(partial.Nodes) {
		return acc, nil, fmt.Errorf(
			"%w: resolution covers %d of %d incoming nodes",
			ErrMalformedPartialGraph, len(res.Decisions), len(partial.Nodes),
		)
	}

	for i, e := range partial.Edges {
		for _, end := range [2]string{e.Source, e.Target} {
			if _, ok := res.Remapping[end]; ok {
				continue
			}
			if _, ok := existing[end]; ok {
				continue
			}
			return acc, nil, fmt.Errorf(
				"%w: edge %d (%s %s %s) references unknown node %q",
				ErrMalformedPartialGraph, i, e.Source, e.Label, e.Target, end,
			)
		}
	}

	work := acc.Clone()
	index := work.NodeIndex()
	used := make(map[string]struct{}, len(work.Nodes)+len(work.Edges))
	for id := range index {
		used[id] = struct{}{}
	}
	for i := range work.Edges {
		used[work.Edges[i].ID] = struct{}{}
	}

	result := emptyResult(ns.Source)
	result.Batch = ns.Batch
	result.Decisions = append(result.Decisions, res.Decisions...)
	touched := make(map[string]struct{}, len(res.Decisions))
	touch := func(id string) {
		if _, ok := touched[id]; ok {
			return
		}
		touched[id] = struct{}{}
		result.TouchedNodeIDs = append(result.TouchedNodeIDs, id)
	}

	final := result.Remapping
	for _, d := range res.Decisions {
		in := incoming[d.IncomingID]

		switch d.Action {
		case ActionInsert:
			id, err := allocateUnique(alloc.NodeID, ns, used)
			if err != nil {
				return acc, nil, err
			}
			node := common.Node{
				ID:          id,
				Label:       in.Label,
				Type:        in.Type,
				Properties:  in.Properties.Clone(),
				SubgraphIDs: []common.SubgraphID{ns.Batch},
			}
			if node.Properties == nil {
				node.Properties = common.Properties{}
			}
			if in.Layout != nil {
				l := *in.Layout
				node.Layout = &l
			}
			work.Nodes = append(work.Nodes, node)
			index[id] = len(work.Nodes) - 1
			final[d.IncomingID] = id
			result.NodesInserted++
			result.InsertedNodeIDs = append(result.InsertedNodeIDs, id)
			touch(id)

		case ActionMerge:
			targetID := d.TargetID
			if d.Intra {
				mapped, ok := final[d.TargetID]
				if !ok {
					return acc, nil, fmt.Errorf("%w: node %q merges into unresolved node %q", ErrMalformedPartialGraph, d.IncomingID, d.TargetID)
				}
				targetID = mapped
			}
			pos, ok := index[targetID]
			if !ok {
				return acc, nil, fmt.Errorf("%w: merge target %q of node %q does not exist", ErrMalformedPartialGraph, targetID, d.IncomingID)
			}
			target := &work.Nodes[pos]
			mergeProperties(target, in)
			target.SubgraphIDs, _ = common.AddSubgraph(target.SubgraphIDs, ns.Batch)
			final[d.IncomingID] = targetID
			result.NodesMerged++
			touch(targetID)

		default:
			return acc, nil, fmt.Errorf("%w: no decision for node %q", ErrMalformedPartialGraph, d.IncomingID)
		}
	}

	for _, e := range partial.Edges {
		source := resolveEndpoint(e.Source, final)
		target := resolveEndpoint(e.Target, final)
		if _, ok := index[source]; !ok {
			return acc, nil, fmt.Errorf("%w: edge source %q resolves to missing node %q", ErrMalformedPartialGraph, e.Source, source)
		}
		if _, ok := index[target]; !ok {
			return acc, nil, fmt.Errorf("%w: edge target %q resolves to missing node %q", ErrMalformedPartialGraph, e.Target, target)
		}

		id, err := allocateUnique(alloc.EdgeID, ns, used)
		if err != nil {
			return acc, nil, err
		}
		work.Edges = append(work.Edges, common.Edge{
			ID:          id,
			Source:      source,
			Target:      target,
			Label:       e.Label,
			Properties:  e.Properties.Clone(),
			SubgraphIDs: []common.SubgraphID{ns.Batch},
		})
		result.EdgesInserted++
		result.EdgeIDs = append(result.EdgeIDs, id)
	}

	return work, result, nil
}

// resolveEndpoint maps an incoming edge endpoint to its accumulator id.
// Endpoints that are not incoming node ids already name accumulator nodes.
func resolveEndpoint(id string, final map[string]string) string {
	if mapped, ok := final[id]; ok {
		return mapped
	}
	return id
}

// mergeProperties unions incoming properties into target. Values already
// present on target are kept.
func mergeProperties(target *common.Node, in *common.Node) {
	if target.Properties == nil {
		target.Properties = common.Properties{}
	}
	for key, value := range in.Properties {
		if _, exists := target.Properties[key]; exists {
			continue
		}
		target.Properties[key] = value.Clone()
	}
	if target.Label == "" {
		target.Label = in.Label
	}
}
