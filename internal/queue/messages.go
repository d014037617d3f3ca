package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"

	"github.com/go-playground/validator"
)

// ErrInvalidMessage marks messages that can never be processed. They are
// dead-lettered without retries.
var ErrInvalidMessage = errors.New("invalid queue message")

// QueueMergeMsg carries a partial graph from a collaborator.
type QueueMergeMsg struct {
	GraphID       string              `json:"graph_id" validate:"required"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Anchor        string              `json:"anchor,omitempty"`
	Source        string              `json:"source,omitempty" validate:"omitempty,oneof=seg ws collab"`
	Partial       common.PartialGraph `json:"partial"`
}

// QueueExpandMsg requests a web-search expansion of one node.
type QueueExpandMsg struct {
	GraphID       string `json:"graph_id" validate:"required"`
	CorrelationID string `json:"correlation_id,omitempty"`
	AnchorID      string `json:"anchor_id" validate:"required"`
}

// QueueSegmentMsg carries text to extract and merge segment by segment.
// Segments are used as given; otherwise Text is split into segments of at
// most MaxTokens tokens.
type QueueSegmentMsg struct {
	GraphID       string   `json:"graph_id" validate:"required"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Text          string   `json:"text,omitempty"`
	Segments      []string `json:"segments,omitempty" validate:"omitempty,dive,required"`
	MaxTokens     int      `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	EntityTypes   []string `json:"entity_types,omitempty" validate:"omitempty,dive,required"`
}

// QueueEventMsg is published on EventExchange under "graph.<id>.<kind>"
// after every merge and when a job ends.
type QueueEventMsg struct {
	GraphID       string             `json:"graph_id"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Queue         string             `json:"queue"`
	State         string             `json:"state"`
	Index         int                `json:"index"`
	Total         int                `json:"total"`
	Result        *graph.MergeResult `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
}

var validate = validator.New()

// decode unmarshals and validates a message body.
func decode[T any](body []byte) (*T, error) {
	msg := new(T)
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return msg, nil
}
