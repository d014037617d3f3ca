package segment

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/extract"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"
)

// State is the state of one orchestrated run.
type State uint8

const (
	StateIdle State = iota
	StateExtracting
	StateMerging
	StateDone
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether no further events follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}

// Totals aggregate the merges of one run.
type Totals struct {
	Segments      int                 `json:"segments"`
	NodesInserted int                 `json:"nodesInserted"`
	NodesMerged   int                 `json:"nodesMerged"`
	EdgesInserted int                 `json:"edgesInserted"`
	Batches       []common.SubgraphID `json:"batches"`
}

func (t *Totals) add(res *graph.MergeResult) {
	t.Segments++
	t.NodesInserted += res.NodesInserted
	t.NodesMerged += res.NodesMerged
	t.EdgesInserted += res.EdgesInserted
	if res.Batch != graph.NoBatch {
		t.Batches = append(t.Batches, res.Batch)
	}
}

// Event reports progress of a run.
//
// A progress event is sent after segment Index was merged; its State is
// StateMerging and Result holds the merge result. The last event of a run
// has a terminal State. Failed runs carry a *SegmentError in Err, canceled
// runs the context error.
type Event struct {
	State  State
	Index  int
	Total  int
	Result *graph.MergeResult
	Totals Totals
	Err    error
}

// SegmentError is the failure of one segment. Segments before Index stay
// merged.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Orchestrator extracts an ordered list of segments and merges them one
// after another into a target graph.
//
// An Orchestrator should be created using NewOrchestrator.
type Orchestrator struct {
	extractor extract.Extractor
}

func NewOrchestrator(extractor extract.Extractor) *Orchestrator {
	return &Orchestrator{extractor: extractor}
}

// Run processes segments in order and streams events on the returned
// channel, which is closed after the terminal event.
//
// Segment 0 seeds an empty target. All merges are unanchored. A failing
// segment halts the run and everything merged before it is kept.
// Cancellation of ctx is honored between segments and aborts a running
// extraction, but never interrupts a merge.
func (o *Orchestrator) Run(ctx context.Context, target graph.Target, segments []Segment) <-chan Event {
	events := make(chan Event, len(segments)+1)
	go func() {
		defer close(events)
		o.run(ctx, target, segments, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, target graph.Target, segments []Segment, events chan<- Event) {
	total := len(segments)
	var totals Totals

	terminal := func(state State, index int, err error) {
		events <- Event{State: state, Index: index, Total: total, Totals: totals, Err: err}
	}

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			logger.Info("[Segment] Canceled", "next", i, "total", total)
			terminal(StateCanceled, i, err)
			return
		}

		partial, err := o.extractor.Extract(ctx, seg.Text, seg.Options)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				logger.Info("[Segment] Canceled during extraction", "index", i, "total", total)
				terminal(StateCanceled, i, ctxErr)
				return
			}
			if !errors.Is(err, graph.ErrExtractionFailed) {
				err = fmt.Errorf("%w: %w", graph.ErrExtractionFailed, err)
			}
			logger.Error("[Segment] Extraction failed", "index", i, "total", total, "err", err)
			terminal(StateFailed, i, &SegmentError{Index: i, Err: err})
			return
		}
		if partial == nil {
			partial = &common.PartialGraph{}
		}

		res, err := target.Apply(context.WithoutCancel(ctx), *partial, graph.ApplyOptions{
			Source: graph.SourceSegment,
			Seed:   i == 0,
		})
		if err != nil {
			logger.Error("[Segment] Merge failed", "index", i, "total", total, "err", err)
			terminal(StateFailed, i, &SegmentError{Index: i, Err: err})
			return
		}

		totals.add(res)
		logger.Info("[Segment] Merged",
			"index", i,
			"total", total,
			"batch", res.Batch,
			"inserted", res.NodesInserted,
			"merged", res.NodesMerged,
			"edges", res.EdgesInserted,
		)
		events <- Event{State: StateMerging, Index: i, Total: total, Result: res, Totals: totals}
	}

	logger.Info("[Segment] Done",
		"segments", totals.Segments,
		"inserted", totals.NodesInserted,
		"merged", totals.NodesMerged,
		"edges", totals.EdgesInserted,
	)
	terminal(StateDone, total, nil)
}

// RunSync runs segments and waits for the terminal event. The returned
// totals cover the segments merged before a failure or cancellation.
func (o *Orchestrator) RunSync(ctx context.Context, target graph.Target, segments []Segment) (Totals, error) {
	var last Event
	for ev := range o.Run(ctx, target, segments) {
		last = ev
	}
	return last.Totals, last.Err
}
