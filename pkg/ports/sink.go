package ports

import (
	"context"
	"errors"

	"github.com/aretw0/ragloop/pkg/domain"
)

// TraceSink receives run trace events as they are emitted.
// Publishing failures never abort a run; the engine only logs them.
type TraceSink interface {
	Publish(ctx context.Context, runID string, event domain.Event) error
}

// TraceSinkFunc adapts a function to the TraceSink interface.
type TraceSinkFunc func(ctx context.Context, runID string, event domain.Event) error

func (f TraceSinkFunc) Publish(ctx context.Context, runID string, event domain.Event) error {
	return f(ctx, runID, event)
}

// FanOut returns a sink publishing every event to each of sinks in order.
// All sinks are attempted; their errors are joined.
func FanOut(sinks ...TraceSink) TraceSink {
	return fanOut(sinks)
}

type fanOut []TraceSink

func (f fanOut) Publish(ctx context.Context, runID string, event domain.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, runID, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
