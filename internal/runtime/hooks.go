package runtime

import (
	"context"
	"time"

	"github.com/aretw0/ragloop/pkg/domain"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/aretw0/ragloop/internal/runtime")

func (e *Engine) emitRunStart(ctx context.Context, runID, question string) {
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, &domain.RunEvent{RunID: runID, Question: question})
	}
}

func (e *Engine) emitRunEnd(ctx context.Context, runID, question string, outcome domain.Outcome, err error, d time.Duration) {
	if e.hooks.OnRunEnd != nil {
		e.hooks.OnRunEnd(ctx, &domain.RunEvent{
			RunID:    runID,
			Question: question,
			Outcome:  outcome,
			Err:      err,
			Duration: d,
		})
	}
}

func (e *Engine) emitNodeEnter(ctx context.Context, runID string, id domain.NodeID, step int) {
	e.logger.Debug("entering node", "run_id", runID, "node", id, "step", step)
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{RunID: runID, NodeID: id, Step: step})
	}
}

func (e *Engine) emitNodeLeave(ctx context.Context, runID string, id domain.NodeID, step int, d time.Duration, err error) {
	if e.hooks.OnNodeLeave != nil {
		e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{RunID: runID, NodeID: id, Step: step, Duration: d, Err: err})
	}
}

func (e *Engine) emitRoute(ctx context.Context, runID string, from domain.NodeID, router domain.RouterID, label string, to domain.NodeID) {
	e.logger.Debug("route decided", "run_id", runID, "from", from, "router", router, "label", label, "to", to)
	if e.hooks.OnRoute != nil {
		e.hooks.OnRoute(ctx, &domain.RouteEvent{RunID: runID, From: from, Router: router, Label: label, To: to})
	}
}

func (e *Engine) emitLoopTraversal(ctx context.Context, runID string, loop domain.LoopID, count, bound int) {
	if e.hooks.OnLoopTraversal != nil {
		e.hooks.OnLoopTraversal(ctx, &domain.LoopEvent{RunID: runID, Loop: loop, Count: count, Bound: bound})
	}
}
