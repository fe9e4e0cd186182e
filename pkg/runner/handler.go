package runner

import (
	"context"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Input reads the next question. It returns io.EOF when the user is done.
	Input(ctx context.Context) (string, error)

	// Event presents one trace event while a run progresses.
	Event(ctx context.Context, ev domain.Event) error

	// Answer presents the final answer of a run.
	Answer(ctx context.Context, ans *ragloop.Answer) error

	// SystemOutput presents a meta-message to the user (errors, status updates).
	// This is distinct from answer rendering.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms answer text before it is printed.
// This allows TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
