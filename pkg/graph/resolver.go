package graph

import (
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// Action is the resolution outcome for one incoming node.
type Action uint8

const (
	ActionInsert Action = iota + 1
	ActionMerge
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// Decision records what happens to one incoming node.
//
// For ActionMerge, TargetID is the id of the node the incoming node folds
// into. Intra is set when that target is an earlier node of the same partial
// graph rather than a node of the accumulator. For ActionInsert, TargetID
// equals IncomingID.
type Decision struct {
	IncomingID string  `json:"incomingId"`
	Action     Action  `json:"action"`
	TargetID   string  `json:"targetId"`
	Score      float64 `json:"score"`
	Intra      bool    `json:"intra,omitempty"`
}

// Resolution is the total set of decisions for one partial graph, in the
// order of the incoming nodes.
type Resolution struct {
	Decisions []Decision
	// Remapping maps every incoming node id to the id it resolves to:
	// the existing node for merges, itself for inserts.
	Remapping map[string]string
	// Inserts are the incoming nodes that become new nodes.
	Inserts []common.Node
}

// Resolver applies a Scorer across an incoming node set. It never mutates
// its inputs.
type Resolver struct {
	scorer    *Scorer
	threshold float64
}

// NewResolver returns a Resolver for policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{
		scorer:    NewScorer(policy),
		threshold: policy.Threshold,
	}
}

// Resolve decides merge or insert for every incoming node.
//
// Each incoming node is scored against every existing node of the same type
// and, after those, against incoming nodes already marked for insertion.
// The best candidate wins if its score reaches the threshold. On equal
// scores the earlier candidate is kept, so existing nodes beat incoming
// ones and earlier-inserted existing nodes beat later ones.
func (r *Resolver) Resolve(existing []common.Node, incoming []common.Node) Resolution {
	res := Resolution{
		Decisions: make([]Decision, 0, len(incoming)),
		Remapping: make(map[string]string, len(incoming)),
		Inserts:   make([]common.Node, 0, len(incoming)),
	}

	for _, in := range incoming {
		bestScore := -1.0
		bestID := ""
		bestIntra := false

		for i := range existing {
			if !sameType(existing[i].Type, in.Type) {
				continue
			}
			score := r.scorer.Score(existing[i], in)
			if score > bestScore {
				bestScore = score
				bestID = existing[i].ID
			}
		}
		for i := range res.Inserts {
			if !sameType(res.Inserts[i].Type, in.Type) {
				continue
			}
			score := r.scorer.Score(res.Inserts[i], in)
			if score > bestScore {
				bestScore = score
				bestID = res.Inserts[i].ID
				bestIntra = true
			}
		}

		if bestID != "" && bestScore >= r.threshold {
			res.Decisions = append(res.Decisions, Decision{
				IncomingID: in.ID,
				Action:     ActionMerge,
				TargetID:   bestID,
				Score:      bestScore,
				Intra:      bestIntra,
			})
			res.Remapping[in.ID] = bestID
			continue
		}

		res.Decisions = append(res.Decisions, Decision{
			IncomingID: in.ID,
			Action:     ActionInsert,
			TargetID:   in.ID,
			Score:      max(bestScore, 0),
		})
		res.Remapping[in.ID] = in.ID
		res.Inserts = append(res.Inserts, in)
	}

	return res
}
