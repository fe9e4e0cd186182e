package domain

import (
	"context"
	"time"
)

// Outcome describes how a run ended.
type Outcome string

const (
	// OutcomeAnswered means END was reached through a regular transition.
	OutcomeAnswered Outcome = "answered"
	// OutcomeBounded means a loop bound was exceeded and the run stopped early.
	OutcomeBounded Outcome = "bounded"
)

// Sentinel answers returned instead of a generation on bounded outcomes.
const (
	NoAnswerUnableToRetrieve = "unable to retrieve relevant documents"
	NoAnswerUngrounded       = "unable to produce a grounded answer"
)

// Event is one item of the run trace.
// It deliberately carries no timestamps or run ids so that traces of deterministic
// runs compare equal.
type Event struct {
	Step  int        `json:"step"`
	Node  NodeID     `json:"node"`
	Patch StatePatch `json:"patch"`

	// Outcome and Exceeded are only set on the terminal END event.
	Outcome  Outcome                 `json:"outcome,omitempty"`
	Exceeded *LoopBoundExceededError `json:"exceeded,omitempty"`
}

// IsTerminal reports whether this is the final event of a run.
func (e Event) IsTerminal() bool {
	return e.Node == NodeEnd
}

// RunEvent is passed to run-level hooks.
type RunEvent struct {
	RunID    string
	Question string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// NodeEvent represents entry into or exit from a node.
type NodeEvent struct {
	RunID    string
	NodeID   NodeID
	Step     int
	Duration time.Duration // set on leave
	Err      error         // set on leave
}

// RouteEvent represents a decision taken at a decision point.
type RouteEvent struct {
	RunID  string
	From   NodeID
	Router RouterID
	Label  string
	To     NodeID
}

// LoopEvent represents one traversal of a bounded loop edge.
type LoopEvent struct {
	RunID string
	Loop  LoopID
	Count int
	Bound int
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the run's goroutine and must not block.
type LifecycleHooks struct {
	OnRunStart      func(context.Context, *RunEvent)
	OnRunEnd        func(context.Context, *RunEvent)
	OnNodeEnter     func(context.Context, *NodeEvent)
	OnNodeLeave     func(context.Context, *NodeEvent)
	OnRoute         func(context.Context, *RouteEvent)
	OnLoopTraversal func(context.Context, *LoopEvent)
}

// Merge returns hooks calling h first and then other, for each callback.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart:      chain(h.OnRunStart, other.OnRunStart),
		OnRunEnd:        chain(h.OnRunEnd, other.OnRunEnd),
		OnNodeEnter:     chain(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave:     chain(h.OnNodeLeave, other.OnNodeLeave),
		OnRoute:         chain(h.OnRoute, other.OnRoute),
		OnLoopTraversal: chain(h.OnLoopTraversal, other.OnLoopTraversal),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
