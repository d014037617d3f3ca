package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/internal/util"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/expand"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/segment"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/workspace"
)

// ResumeError is returned when a job made partial progress. The retry path
// requeues Body, which only holds the work still to do, instead of the
// original message.
type ResumeError struct {
	Body []byte
	Err  error
}

func (e *ResumeError) Error() string { return e.Err.Error() }

func (e *ResumeError) Unwrap() error { return e.Err }

// Handler processes the messages of all worker queues.
//
// A Handler should be created using NewHandler.
type Handler struct {
	workspace    *workspace.Workspace
	orchestrator *segment.Orchestrator
	expander     *expand.Expander
	events       Publisher

	encoding  string
	maxTokens int
}

// NewHandlerParams configures a Handler. Events may be nil to disable
// progress events. MaxTokens is the default segment size, 1500 if unset.
// An empty Encoding uses the shared o200k_base encoder.
type NewHandlerParams struct {
	Workspace    *workspace.Workspace
	Orchestrator *segment.Orchestrator
	Expander     *expand.Expander
	Events       Publisher

	Encoding  string
	MaxTokens int
}

func NewHandler(params NewHandlerParams) *Handler {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &Handler{
		workspace:    params.Workspace,
		orchestrator: params.Orchestrator,
		expander:     params.Expander,
		events:       params.Events,
		encoding:     params.Encoding,
		maxTokens:    maxTokens,
	}
}

// Process handles one message body received on queueName.
func (h *Handler) Process(ctx context.Context, queueName string, body []byte) error {
	switch queueName {
	case MergeQueue:
		return h.processMerge(ctx, body)
	case ExpandQueue:
		return h.processExpand(ctx, body)
	case SegmentQueue:
		return h.processSegment(ctx, body)
	default:
		return fmt.Errorf("%w: unknown queue %q", ErrInvalidMessage, queueName)
	}
}

func (h *Handler) processMerge(ctx context.Context, body []byte) error {
	msg, err := decode[QueueMergeMsg](body)
	if err != nil {
		return err
	}

	for i := range msg.Partial.Nodes {
		msg.Partial.Nodes[i].Properties = util.SanitizeProperties(msg.Partial.Nodes[i].Properties)
	}
	for i := range msg.Partial.Edges {
		msg.Partial.Edges[i].Properties = util.SanitizeProperties(msg.Partial.Edges[i].Properties)
	}

	source := graph.Source(msg.Source)
	if source == "" {
		source = graph.SourceCollaborator
	}
	res, err := h.workspace.Apply(ctx, msg.GraphID, msg.Partial, graph.ApplyOptions{
		Anchor: msg.Anchor,
		Source: source,
	})
	if err != nil {
		h.publish(QueueEventMsg{GraphID: msg.GraphID, CorrelationID: msg.CorrelationID, Queue: MergeQueue, State: "failed", Total: 1, Error: err.Error()})
		return err
	}

	h.publish(QueueEventMsg{GraphID: msg.GraphID, CorrelationID: msg.CorrelationID, Queue: MergeQueue, State: "done", Total: 1, Result: res})
	return nil
}

func (h *Handler) processExpand(ctx context.Context, body []byte) error {
	msg, err := decode[QueueExpandMsg](body)
	if err != nil {
		return err
	}
	if h.expander == nil {
		return fmt.Errorf("%w: web search expansion is not configured", ErrInvalidMessage)
	}

	res, err := h.expander.Expand(ctx, h.workspace.Handle(msg.GraphID), msg.AnchorID)
	if err != nil {
		h.publish(QueueEventMsg{GraphID: msg.GraphID, CorrelationID: msg.CorrelationID, Queue: ExpandQueue, State: "failed", Total: 1, Error: err.Error()})
		return err
	}

	h.publish(QueueEventMsg{GraphID: msg.GraphID, CorrelationID: msg.CorrelationID, Queue: ExpandQueue, State: "done", Total: 1, Result: res})
	return nil
}

func (h *Handler) processSegment(ctx context.Context, body []byte) error {
	msg, err := decode[QueueSegmentMsg](body)
	if err != nil {
		return err
	}

	texts := msg.Segments
	if len(texts) == 0 {
		if msg.Text == "" {
			return fmt.Errorf("%w: segment message without text", ErrInvalidMessage)
		}
		maxTokens := msg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = h.maxTokens
		}
		split, err := segment.SplitText(msg.Text, h.encoding, maxTokens)
		if err != nil {
			return err
		}
		texts = make([]string, len(split))
		for i, s := range split {
			texts[i] = s.Text
		}
	}

	segments := make([]segment.Segment, len(texts))
	for i, text := range texts {
		segments[i] = segment.Segment{Text: text}
		segments[i].Options.EntityTypes = msg.EntityTypes
	}

	logger.Info("[Queue] Processing segments", "graph_id", msg.GraphID, "segments", len(segments))

	var last segment.Event
	for ev := range h.orchestrator.Run(ctx, h.workspace.Handle(msg.GraphID), segments) {
		last = ev
		out := QueueEventMsg{
			GraphID:       msg.GraphID,
			CorrelationID: msg.CorrelationID,
			Queue:         SegmentQueue,
			State:         ev.State.String(),
			Index:         ev.Index,
			Total:         ev.Total,
			Result:        ev.Result,
		}
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
		h.publish(out)
	}

	// Segments before resumeAt are committed and must not be merged again.
	resumeAt := 0
	var segErr *segment.SegmentError
	switch {
	case last.State == segment.StateFailed && errors.As(last.Err, &segErr):
		resumeAt = segErr.Index
	case last.State == segment.StateCanceled:
		resumeAt = last.Index
	}
	if resumeAt > 0 && resumeAt < len(texts) {
		rest := *msg
		rest.Text = ""
		rest.Segments = texts[resumeAt:]
		resumed, err := json.Marshal(rest)
		if err != nil {
			return last.Err
		}
		return &ResumeError{Body: resumed, Err: last.Err}
	}
	return last.Err
}

func (h *Handler) publish(ev QueueEventMsg) {
	if h.events == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("[Queue] Failed to marshal event", "graph_id", ev.GraphID, "err", err)
		return
	}
	topic := fmt.Sprintf("graph.%s.%s", ev.GraphID, ev.State)
	if err := PublishTopic(h.events, topic, data); err != nil {
		logger.Warn("[Queue] Failed to publish event", "topic", topic, "err", err)
	}
}
