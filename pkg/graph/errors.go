package graph

import "errors"

var (
	// ErrMalformedPartialGraph is returned when a partial graph cannot be
	// merged as delivered, for example when an edge references a node id
	// that is neither part of the partial graph nor of the accumulator.
	// The accumulator is left unchanged.
	ErrMalformedPartialGraph = errors.New("malformed partial graph")

	// ErrUnknownAnchor is returned when an anchored merge names a node that
	// does not exist in the accumulator.
	ErrUnknownAnchor = errors.New("unknown anchor node")

	// ErrExtractionFailed wraps failures of the extraction collaborator. A
	// failed extraction is never merged.
	ErrExtractionFailed = errors.New("extraction failed")
)
