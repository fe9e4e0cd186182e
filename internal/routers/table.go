package routers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
)

// Func resolves the label of a decision point from the current state.
type Func func(ctx context.Context, state domain.State) (string, error)

// Router couples a decision function with its closed label set.
type Router struct {
	ID     domain.RouterID
	Labels domain.LabelSet
	Decide Func
}

// Table holds the three decision points of the graph.
type Table struct {
	router       ports.Classifier
	groundedness ports.Classifier
	usefulness   ports.Classifier
	timeout      time.Duration
}

// Option configures a Table.
type Option func(*Table)

// WithUsefulnessGrader enables the answer usefulness check after groundedness.
func WithUsefulnessGrader(c ports.Classifier) Option {
	return func(t *Table) {
		t.usefulness = c
	}
}

// WithCallTimeout bounds every classifier call made by the table.
func WithCallTimeout(d time.Duration) Option {
	return func(t *Table) {
		t.timeout = d
	}
}

// NewTable creates the router table.
func NewTable(router, groundedness ports.Classifier, opts ...Option) *Table {
	t := &Table{
		router:       router,
		groundedness: groundedness,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Routers returns every decision point keyed by id.
func (t *Table) Routers() map[domain.RouterID]Router {
	return map[domain.RouterID]Router{
		domain.RouterRouteQuestion: {
			ID:     domain.RouterRouteQuestion,
			Labels: domain.RouteQuestionLabels,
			Decide: t.RouteQuestion,
		},
		domain.RouterDecideToGenerate: {
			ID:     domain.RouterDecideToGenerate,
			Labels: domain.DecideToGenerateLabels,
			Decide: t.DecideToGenerate,
		},
		domain.RouterGradeGeneration: {
			ID:     domain.RouterGradeGeneration,
			Labels: domain.GradeGenerationLabels,
			Decide: t.GradeGeneration,
		},
	}
}

// RouteQuestion asks the router classifier whether the question needs the corpus.
func (t *Table) RouteQuestion(ctx context.Context, state domain.State) (string, error) {
	raw, err := t.classify(ctx, domain.NodeStart, t.router, ports.PromptRouteQuestion, map[string]string{
		ports.VarQuestion: state.Question,
	})
	if err != nil {
		return "", err
	}
	label, err := DecodeDatasource(raw)
	if err != nil {
		return "", &domain.NodeExecutionError{Node: string(domain.RouterRouteQuestion), Cause: err}
	}
	if !domain.RouteQuestionLabels.Contains(label) {
		return "", domain.UnknownLabel(string(domain.RouterRouteQuestion), label, domain.RouteQuestionLabels)
	}
	return label, nil
}

// DecideToGenerate is a pure function of the filtered documents.
func (t *Table) DecideToGenerate(_ context.Context, state domain.State) (string, error) {
	return DecideToGenerate(state.Documents), nil
}

// DecideToGenerate returns transform_query for an empty sequence and generate otherwise.
func DecideToGenerate(docs []domain.Document) string {
	if len(docs) == 0 {
		return domain.LabelTransformQuery
	}
	return domain.LabelGenerate
}

// GradeGeneration checks that the generation is grounded in the documents and, when a
// usefulness grader is configured, that it answers the question.
func (t *Table) GradeGeneration(ctx context.Context, state domain.State) (string, error) {
	raw, err := t.classify(ctx, domain.NodeGenerate, t.groundedness, ports.PromptGradeGeneration, map[string]string{
		ports.VarDocuments:  domain.FormatDocuments(state.Documents),
		ports.VarGeneration: state.Generation,
	})
	if err != nil {
		return "", err
	}
	grounded, err := t.score(raw)
	if err != nil {
		return "", err
	}
	if !grounded {
		return domain.LabelNotSupported, nil
	}
	if t.usefulness == nil {
		return domain.LabelUseful, nil
	}

	raw, err = t.classify(ctx, domain.NodeGenerate, t.usefulness, ports.PromptGradeAnswer, map[string]string{
		ports.VarQuestion:   state.Question,
		ports.VarGeneration: state.Generation,
	})
	if err != nil {
		return "", err
	}
	useful, err := t.score(raw)
	if err != nil {
		return "", err
	}
	if !useful {
		return domain.LabelNotSupported, nil
	}
	return domain.LabelUseful, nil
}

func (t *Table) score(raw ports.Decision) (bool, error) {
	ok, err := DecodeScore(string(domain.RouterGradeGeneration), raw)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return false, err
		}
		return false, &domain.NodeExecutionError{Node: string(domain.RouterGradeGeneration), Cause: err}
	}
	return ok, nil
}

// classify invokes a classifier under the table's timeout. Failures are attributed to the
// decision point; a cancelled parent context is reported as cancellation of from.
func (t *Table) classify(ctx context.Context, from domain.NodeID, c ports.Classifier, kind ports.PromptKind, vars map[string]string) (ports.Decision, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	defer cancel()

	raw, err := c.Classify(callCtx, kind, vars)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.CancelledError{Node: from, Cause: ctx.Err()}
		}
		return nil, &domain.NodeExecutionError{
			Node:  routerFor(kind),
			Cause: fmt.Errorf("%s classifier: %w", kind, err),
		}
	}
	return raw, nil
}

func routerFor(kind ports.PromptKind) string {
	if kind == ports.PromptRouteQuestion {
		return string(domain.RouterRouteQuestion)
	}
	return string(domain.RouterGradeGeneration)
}
