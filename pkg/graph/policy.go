package graph

import (
	"fmt"

	"github.com/go-playground/validator"
)

// DefaultNameKeys are the property keys checked, in order, for a node's
// display name.
var DefaultNameKeys = []string{"name", "title", "label", "displayName"}

// Policy holds the merge threshold and scoring weights used by the
// CandidateScorer and EntityResolver.
//
// A type match contributes TypeMatchWeight, an exact case-insensitive name
// match ExactNameWeight, a name containment PartialNameWeight and every
// further equal property PropertyMatchWeight up to PropertyMatchCap. The sum
// is clamped to [0,1]. With the defaults an exact name match of two nodes
// of the same type scores exactly the threshold.
type Policy struct {
	Threshold           float64  `json:"threshold" validate:"gt=0,lte=1"`
	TypeMatchWeight     float64  `json:"typeMatchWeight" validate:"gte=0,lte=1"`
	ExactNameWeight     float64  `json:"exactNameWeight" validate:"gte=0,lte=1"`
	PartialNameWeight   float64  `json:"partialNameWeight" validate:"gte=0,lte=1"`
	PropertyMatchWeight float64  `json:"propertyMatchWeight" validate:"gte=0,lte=1"`
	PropertyMatchCap    float64  `json:"propertyMatchCap" validate:"gte=0,lte=1"`
	NameKeys            []string `json:"nameKeys" validate:"min=1,dive,required"`
}

// DefaultPolicy returns the default merge policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:           0.85,
		TypeMatchWeight:     0.15,
		ExactNameWeight:     0.7,
		PartialNameWeight:   0.4,
		PropertyMatchWeight: 0.1,
		PropertyMatchCap:    0.3,
		NameKeys:            append([]string(nil), DefaultNameKeys...),
	}
}

var validate = validator.New()

// Validate checks that all weights are within [0,1] and at least one name
// key is configured.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid merge policy: %w", err)
	}
	return nil
}
