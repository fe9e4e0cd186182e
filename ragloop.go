package ragloop

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/ragloop/internal/nodes"
	"github.com/aretw0/ragloop/internal/routers"
	"github.com/aretw0/ragloop/internal/runtime"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
)

// FallbackPolicy decides what a bounded run returns.
type FallbackPolicy string

const (
	// FallbackNoAnswer returns an explicit no-answer sentinel when a bound is exceeded.
	// The last generation, if any, is kept in Answer.BestEffort.
	FallbackNoAnswer FallbackPolicy = "no_answer"
	// FallbackBestEffort returns the last ungrounded generation when the regenerate
	// bound is exceeded. A rewrite bound still yields the no-answer sentinel.
	FallbackBestEffort FallbackPolicy = "best_effort"
)

// ParseFallbackPolicy converts a configuration string into a FallbackPolicy.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", FallbackNoAnswer:
		return FallbackNoAnswer, nil
	case FallbackBestEffort:
		return FallbackBestEffort, nil
	default:
		return "", &domain.ConfigurationError{Where: "fallback", Reason: fmt.Sprintf("unknown policy %q", s)}
	}
}

// Engine is the high-level entry point of the library.
// It wires the node registry and the router table into the runtime.
type Engine struct {
	runtime *runtime.Engine
	policy  FallbackPolicy
	logger  *slog.Logger
}

type config struct {
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	bounds       map[domain.LoopID]int
	timeout      time.Duration
	concurrency  int
	previewWidth int
	policy       FallbackPolicy
	sink         ports.TraceSink
	runID        func() string
}

// Option defines a functional option for configuring the Engine.
type Option func(*config)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithLoopBounds sets the rewrite (M) and regenerate (N) traversal bounds.
func WithLoopBounds(rewrite, regenerate int) Option {
	return func(c *config) {
		c.bounds[domain.LoopRewrite] = rewrite
		c.bounds[domain.LoopRegenerate] = regenerate
	}
}

// WithCallTimeout bounds every collaborator call. The default is 30 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithGradeConcurrency limits concurrent relevance grading within one run.
func WithGradeConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithPreviewWidth sets how many characters of generated text appear in debug logs.
func WithPreviewWidth(n int) Option {
	return func(c *config) {
		c.previewWidth = n
	}
}

// WithFallbackPolicy chooses what a bounded run returns.
func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithTraceSink publishes every run event to an external sink.
func WithTraceSink(sink ports.TraceSink) Option {
	return func(c *config) {
		c.sink = sink
	}
}

// WithRunIDGenerator overrides run id generation (hooks, logs and sinks only).
func WithRunIDGenerator(fn func() string) Option {
	return func(c *config) {
		c.runID = fn
	}
}

// New creates an engine over the given collaborators.
// Every collaborator except UsefulnessGrader is required.
func New(collab ports.Collaborators, opts ...Option) (*Engine, error) {
	cfg := &config{
		bounds:       make(map[domain.LoopID]int),
		timeout:      nodes.DefaultCallTimeout,
		concurrency:  nodes.DefaultGradeConcurrency,
		previewWidth: nodes.DefaultPreviewWidth,
		policy:       FallbackNoAnswer,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if missing := collab.Missing(); len(missing) > 0 {
		return nil, &domain.ConfigurationError{
			Where:  "engine",
			Reason: fmt.Sprintf("missing collaborators: %s", strings.Join(missing, ", ")),
		}
	}
	if _, err := ParseFallbackPolicy(string(cfg.policy)); err != nil {
		return nil, err
	}

	registry := nodes.NewRegistry(collab,
		nodes.WithCallTimeout(cfg.timeout),
		nodes.WithGradeConcurrency(cfg.concurrency),
		nodes.WithPreviewWidth(cfg.previewWidth),
		nodes.WithLogger(cfg.logger),
	)

	tableOpts := []routers.Option{routers.WithCallTimeout(cfg.timeout)}
	if collab.UsefulnessGrader != nil {
		tableOpts = append(tableOpts, routers.WithUsefulnessGrader(collab.UsefulnessGrader))
	}
	table := routers.NewTable(collab.Router, collab.GroundednessGrader, tableOpts...)

	rtOpts := []runtime.Option{
		runtime.WithLogger(cfg.logger),
		runtime.WithLifecycleHooks(cfg.hooks),
		runtime.WithRunIDGenerator(cfg.runID),
	}
	for id, bound := range cfg.bounds {
		rtOpts = append(rtOpts, runtime.WithLoopBound(id, bound))
	}
	if cfg.sink != nil {
		rtOpts = append(rtOpts, runtime.WithTraceSink(cfg.sink))
	}

	rt, err := runtime.NewEngine(runtime.CorrectiveRAG(), registry.Steps(), table.Routers(), rtOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	return &Engine{runtime: rt, policy: cfg.policy, logger: cfg.logger}, nil
}

// Run starts a lazy run and returns its event stream.
// See runtime semantics in the package documentation.
func (e *Engine) Run(ctx context.Context, question string) iter.Seq2[domain.Event, error] {
	return e.runtime.Run(ctx, question)
}

// Answer is the final result of RunToCompletion.
type Answer struct {
	// Text is the answer to show. On a no-answer outcome it holds the sentinel.
	Text    string         `json:"text"`
	Outcome domain.Outcome `json:"outcome"`
	// NoAnswer is true when Text is a sentinel rather than a generation.
	NoAnswer bool `json:"no_answer"`
	// Reason names the sentinel on a no-answer outcome.
	Reason string `json:"reason,omitempty"`
	// BestEffort holds the last generation of a bounded run, if any.
	BestEffort string                         `json:"best_effort,omitempty"`
	Exceeded   *domain.LoopBoundExceededError `json:"exceeded,omitempty"`
	Question   string                         `json:"question"`
	Trace      []domain.Event                 `json:"trace"`
}

// RunToCompletion drains a run and extracts the final answer.
// A bounded run is not an error: it yields an Answer with Outcome "bounded".
func (e *Engine) RunToCompletion(ctx context.Context, question string) (*Answer, error) {
	res, err := e.runtime.Execute(ctx, question)
	if err != nil {
		return nil, err
	}
	return e.answer(res), nil
}

// Collect folds the events of a Run into the Answer RunToCompletion would have returned.
// trace must end with the terminal END event.
func (e *Engine) Collect(question string, trace []domain.Event) *Answer {
	res := &runtime.Result{Final: domain.NewState(question), Trace: trace}
	for _, ev := range trace {
		res.Final = domain.Merge(res.Final, ev.Patch)
		if ev.IsTerminal() {
			res.Outcome = ev.Outcome
			res.Exceeded = ev.Exceeded
		}
	}
	return e.answer(res)
}

func (e *Engine) answer(res *runtime.Result) *Answer {
	ans := &Answer{
		Text:     res.Final.Generation,
		Outcome:  res.Outcome,
		Question: res.Final.Question,
		Trace:    res.Trace,
	}
	if res.Outcome != domain.OutcomeBounded {
		return ans
	}

	ans.Exceeded = res.Exceeded
	ans.BestEffort = res.Final.Generation
	if res.Exceeded != nil && res.Exceeded.Edge == domain.LoopRegenerate {
		if e.policy == FallbackBestEffort && res.Final.Generation != "" {
			return ans
		}
		ans.Reason = domain.NoAnswerUngrounded
	} else {
		ans.Reason = domain.NoAnswerUnableToRetrieve
	}
	ans.Text = ans.Reason
	ans.NoAnswer = true
	return ans
}

// Inspect returns the topology and loop bounds of the engine.
func (e *Engine) Inspect() Topology {
	g := e.runtime.Graph()
	return Topology{
		Nodes:  g.Nodes(),
		Graph:  g,
		Bounds: e.runtime.Bounds(),
	}
}

// Topology is a read-only view of the graph driven by an engine.
type Topology struct {
	Nodes  []domain.NodeID       `json:"nodes"`
	Graph  runtime.Graph         `json:"graph"`
	Bounds map[domain.LoopID]int `json:"bounds"`
}
