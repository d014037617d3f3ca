package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"
)

// ApplyOptions configures one merge operation.
type ApplyOptions struct {
	// Anchor is the id of the accumulator node that triggered the operation,
	// e.g. the node a web search expanded from. An empty Anchor makes the
	// merge unanchored and disables the connectivity check.
	Anchor string
	// Source namespaces generated ids. Defaults to SourceSegment.
	Source Source
	// Seed lets the partial graph replace an empty accumulator outright,
	// skipping resolution against existing nodes. It has no effect on a
	// non-empty accumulator.
	Seed bool
}

// Resolve runs entity resolution of partial against acc without changing
// anything.
func (e *Engine) Resolve(acc *common.Graph, partial common.PartialGraph) Resolution {
	var existing []common.Node
	if acc != nil {
		existing = acc.Nodes
	}
	return e.resolver.Resolve(existing, partial.Nodes)
}

// Apply merges partial into acc and returns the new accumulator.
//
// The operation is all-or-nothing: on error the returned graph is acc
// itself and acc has not been modified. Merging an empty partial graph
// returns acc unchanged without allocating a batch.
//
// Steps: anchor check, validation, batch allocation, resolution, merge and,
// for anchored merges, the connectivity guarantee.
func (e *Engine) Apply(
	acc *common.Graph,
	partial common.PartialGraph,
	opts ApplyOptions,
) (*common.Graph, *MergeResult, error) {
	if acc == nil {
		acc = common.NewGraph()
	}
	source := opts.Source
	if source == "" {
		source = SourceSegment
	}

	if opts.Anchor != "" {
		if _, ok := acc.Node(opts.Anchor); !ok {
			return acc, nil, fmt.Errorf("%w: %q", ErrUnknownAnchor, opts.Anchor)
		}
	}

	if err := validatePartial(partial, e.policy.NameKeys); err != nil {
		return acc, nil, err
	}

	if partial.IsEmpty() {
		logger.Debug("[Merge] Empty partial graph, nothing to merge")
		return acc, emptyResult(source), nil
	}

	batch, next := NextBatch(acc)
	ns := Namespace{Source: source, Batch: batch}

	var res Resolution
	if opts.Seed && acc.IsEmpty() {
		res = e.resolver.Resolve(nil, partial.Nodes)
	} else {
		res = e.resolver.Resolve(next.Nodes, partial.Nodes)
	}

	merged, result, err := Merge(next, partial, res, ns, e.allocator)
	if err != nil {
		return acc, nil, err
	}

	if opts.Anchor != "" {
		var bridge *common.Edge
		merged, bridge, err = EnsureConnected(merged, opts.Anchor, bridgeCandidates(result, opts.Anchor), ns, e.allocator)
		if err != nil {
			return acc, nil, err
		}
		if bridge != nil {
			result.BridgeEdgeID = bridge.ID
			logger.Debug("[Merge] Synthesized bridge edge", "anchor", opts.Anchor, "target", bridge.Target, "batch", batch)
		}
	}

	logger.Debug(
		"[Merge] Applied",
		"batch", batch,
		"source", source,
		"inserted", result.NodesInserted,
		"merged", result.NodesMerged,
		"edges", result.EdgesInserted,
	)

	return merged, result, nil
}

// bridgeCandidates lists the nodes an anchored merge must reach: inserted
// nodes first, then existing nodes that received merges. The anchor is left
// out since it always reaches itself.
func bridgeCandidates(res *MergeResult, anchor string) []string {
	out := make([]string, 0, len(res.TouchedNodeIDs))
	out = append(out, res.InsertedNodeIDs...)
	for _, id := range res.TouchedNodeIDs {
		if id == anchor || slices.Contains(res.InsertedNodeIDs, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// validatePartial rejects partial graphs that cannot be merged as a whole.
func validatePartial(partial common.PartialGraph, nameKeys []string) error {
	seen := make(map[string]struct{}, len(partial.Nodes))
	for i, n := range partial.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return fmt.Errorf("%w: node %d has no id", ErrMalformedPartialGraph, i)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrMalformedPartialGraph, n.ID)
		}
		seen[n.ID] = struct{}{}
		if _, ok := n.Properties.DisplayName(nameKeys); !ok {
			return fmt.Errorf("%w: node %q has no display name (keys %v)", ErrMalformedPartialGraph, n.ID, nameKeys)
		}
	}
	for i, edge := range partial.Edges {
		if edge.Source == "" || edge.Target == "" {
			return fmt.Errorf("%w: edge %d has an empty endpoint", ErrMalformedPartialGraph, i)
		}
	}
	return nil
}
