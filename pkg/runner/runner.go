package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/pkg/domain"
)

// Engine is the part of *ragloop.Engine the runner drives.
type Engine interface {
	Run(ctx context.Context, question string) iter.Seq2[domain.Event, error]
	Collect(question string, trace []domain.Event) *ragloop.Answer
}

var _ Engine = (*ragloop.Engine)(nil)

// Runner handles the question loop using the provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler over Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	signals bool
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{signals: true}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Ask runs one question, streaming its events to the handler, and presents the answer.
// A bounded outcome is not an error.
func (r *Runner) Ask(ctx context.Context, engine Engine, question string) (*ragloop.Answer, error) {
	clean, err := SanitizeInput(question)
	if err != nil {
		return nil, &domain.ConfigurationError{Where: "run", Reason: err.Error()}
	}

	var trace []domain.Event
	for ev, err := range engine.Run(ctx, clean) {
		if err != nil {
			return nil, err
		}
		trace = append(trace, ev)
		if err := r.Handler.Event(ctx, ev); err != nil {
			return nil, fmt.Errorf("output error: %w", err)
		}
	}

	ans := engine.Collect(clean, trace)
	if err := r.Handler.Answer(ctx, ans); err != nil {
		return nil, fmt.Errorf("output error: %w", err)
	}
	return ans, nil
}

// Run reads questions until the input ends or ctx is cancelled.
// Failed runs are reported through the handler and do not end the session.
// An interrupt during a run cancels that run only; an interrupt at the prompt ends the session.
func (r *Runner) Run(ctx context.Context, engine Engine) error {
	var sm *SignalManager
	if r.signals {
		sm = NewSignalManager(ctx)
		defer sm.Stop()
	}
	current := func() context.Context {
		if sm == nil {
			return ctx
		}
		return sm.Context()
	}

	for {
		question, err := r.Handler.Input(current())
		if err != nil {
			if sm != nil {
				sm.CheckRace()
			}
			if errors.Is(err, io.EOF) || current().Err() != nil {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		_, err = r.Ask(current(), engine, question)
		if err == nil {
			continue
		}

		switch {
		case sm != nil && sm.Interrupted():
			r.Logger.Debug("run interrupted", "question", question)
			sm.Reset()
			err = r.Handler.SystemOutput(ctx, "run cancelled")
		case ctx.Err() != nil:
			return nil
		default:
			r.Logger.Debug("run failed", "err", err)
			err = r.Handler.SystemOutput(ctx, err.Error())
		}
		if err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
}
