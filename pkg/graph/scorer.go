package graph

import (
	"slices"
	"strings"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// Scorer computes merge-confidence scores between an existing and an
// incoming node. It is pure: no state beyond its policy, no I/O.
type Scorer struct {
	policy Policy
}

// NewScorer returns a Scorer applying policy.
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Score returns the merge confidence in [0,1]. Nodes of different types
// always score 0.
func (s *Scorer) Score(existing, incoming common.Node) float64 {
	if !sameType(existing.Type, incoming.Type) {
		return 0
	}

	p := s.policy
	score := p.TypeMatchWeight

	existingName, okE := existing.Properties.DisplayName(p.NameKeys)
	incomingName, okI := incoming.Properties.DisplayName(p.NameKeys)
	if okE && okI {
		a := normalizeName(existingName)
		b := normalizeName(incomingName)
		switch {
		case a == b:
			score += p.ExactNameWeight
		case a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a)):
			score += p.PartialNameWeight
		}
	}

	matches := 0
	for key, value := range incoming.Properties {
		if slices.Contains(p.NameKeys, key) {
			continue
		}
		if other, ok := existing.Properties[key]; ok && other.Equal(value) {
			matches++
		}
	}
	score += min(float64(matches)*p.PropertyMatchWeight, p.PropertyMatchCap)

	return max(0, min(score, 1))
}

// sameType is an exact comparison. "Person" and "person" are different
// types and never merge.
func sameType(a, b string) bool {
	return a == b
}

// normalizeName lowercases and collapses whitespace so that "ACME  Corp"
// and "acme corp" compare equal.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
