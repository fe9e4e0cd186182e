// Package nodes implements the step functions of the corrective RAG graph.
package nodes

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
)

const (
	DefaultCallTimeout      = 30 * time.Second
	DefaultGradeConcurrency = 4
	DefaultPreviewWidth     = 20
)

// Step transforms a state snapshot into a patch, possibly calling collaborators.
type Step func(ctx context.Context, state domain.State) (domain.StatePatch, error)

// Registry holds the named step functions and the collaborators they call.
type Registry struct {
	collab       ports.Collaborators
	timeout      time.Duration
	concurrency  int
	previewWidth int
	logger       *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCallTimeout bounds every collaborator call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithGradeConcurrency limits how many documents are graded at once.
func WithGradeConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithPreviewWidth sets how many characters of a generation appear in debug logs.
func WithPreviewWidth(n int) Option {
	return func(r *Registry) {
		r.previewWidth = n
	}
}

// WithLogger sets the logger used for node debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry over the given collaborators.
func NewRegistry(collab ports.Collaborators, opts ...Option) *Registry {
	r := &Registry{
		collab:       collab,
		timeout:      DefaultCallTimeout,
		concurrency:  DefaultGradeConcurrency,
		previewWidth: DefaultPreviewWidth,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Steps returns every executable node keyed by id. START and END are virtual and have no step.
func (r *Registry) Steps() map[domain.NodeID]Step {
	return map[domain.NodeID]Step{
		domain.NodeNormalLLM:      r.NormalLLM,
		domain.NodeRetrieve:       r.Retrieve,
		domain.NodeGradeDocuments: r.GradeDocuments,
		domain.NodeGenerate:       r.Generate,
		domain.NodeTransformQuery: r.TransformQuery,
	}
}

// call runs fn under the per-call timeout. Collaborator failures become NodeExecutionError,
// unless ctx itself was cancelled, in which case the run is reported as cancelled.
func call[T any](ctx context.Context, timeout time.Duration, node domain.NodeID, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out, err := fn(callCtx)
	if err != nil {
		var zero T
		if ctx.Err() != nil {
			return zero, &domain.CancelledError{Node: node, Cause: ctx.Err()}
		}
		return zero, &domain.NodeExecutionError{Node: string(node), Cause: err}
	}
	return out, nil
}

func (r *Registry) preview(s string) string {
	runes := []rune(s)
	if r.previewWidth <= 0 || len(runes) <= r.previewWidth {
		return s
	}
	return string(runes[:r.previewWidth]) + "..."
}
