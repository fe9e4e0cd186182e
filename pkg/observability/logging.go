package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/ragloop/pkg/domain"
)

// LoggingHooks returns lifecycle hooks that audit every transition through logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			logger.InfoContext(ctx, "run started", "run_id", e.RunID, "question", e.Question)
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "run failed", "run_id", e.RunID, "err", e.Err, "duration", e.Duration)
				return
			}
			logger.InfoContext(ctx, "run finished", "run_id", e.RunID, "outcome", e.Outcome, "duration", e.Duration)
		},
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node enter", "run_id", e.RunID, "node_id", e.NodeID, "step", e.Step)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{"run_id", e.RunID, "node_id", e.NodeID, "step", e.Step, "duration", e.Duration}
			if e.Err != nil {
				logger.WarnContext(ctx, "node failed", append(attrs, "err", e.Err)...)
				return
			}
			logger.DebugContext(ctx, "node leave", attrs...)
		},
		OnRoute: func(ctx context.Context, e *domain.RouteEvent) {
			logger.InfoContext(ctx, "route", "run_id", e.RunID, "router", e.Router, "label", e.Label, "to", e.To)
		},
		OnLoopTraversal: func(ctx context.Context, e *domain.LoopEvent) {
			logger.InfoContext(ctx, "loop traversal", "run_id", e.RunID, "loop", e.Loop, "count", e.Count, "bound", e.Bound)
		},
	}
}
