// Package runtime drives runs over the corrective RAG graph.
package runtime

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/ragloop/internal/nodes"
	"github.com/aretw0/ragloop/internal/routers"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLoopBound is the traversal bound applied to loop edges without an explicit bound.
const DefaultLoopBound = 3

// Engine is the state machine runner. It is safe for concurrent runs:
// each run owns its state and loop counters.
type Engine struct {
	graph   Graph
	steps   map[domain.NodeID]nodes.Step
	routers map[domain.RouterID]routers.Router
	bounds  map[domain.LoopID]int

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	sink   ports.TraceSink
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLoopBound sets the traversal bound of one loop edge.
func WithLoopBound(id domain.LoopID, bound int) Option {
	return func(e *Engine) {
		e.bounds[id] = bound
	}
}

// WithTraceSink publishes every event of every run to sink.
func WithTraceSink(sink ports.TraceSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithRunIDGenerator overrides how run ids are minted. Run ids appear in hooks, logs
// and sinks, never in events.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine validates the graph against the steps and routers and creates an engine.
func NewEngine(graph Graph, steps map[domain.NodeID]nodes.Step, rts map[domain.RouterID]routers.Router, opts ...Option) (*Engine, error) {
	if err := graph.Validate(steps, rts); err != nil {
		return nil, err
	}
	e := &Engine{
		graph:   graph,
		steps:   steps,
		routers: rts,
		bounds:  make(map[domain.LoopID]int),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:   uuid.NewString,
	}
	for _, l := range graph.Loops {
		e.bounds[l.ID] = DefaultLoopBound
	}
	for _, opt := range opts {
		opt(e)
	}
	for id, bound := range e.bounds {
		if bound < 0 {
			return nil, &domain.ConfigurationError{Where: string(id), Reason: "loop bound must not be negative"}
		}
	}
	return e, nil
}

// Graph returns the topology driven by the engine.
func (e *Engine) Graph() Graph {
	return e.graph
}

// Bounds returns a copy of the loop bounds in effect.
func (e *Engine) Bounds() map[domain.LoopID]int {
	out := make(map[domain.LoopID]int, len(e.bounds))
	for k, v := range e.bounds {
		out[k] = v
	}
	return out
}

// Run starts a lazy run for question. Each node visit yields one event; a run that
// reaches END or exceeds a loop bound finishes with a terminal END event. A fatal error
// is yielded once with a zero event and ends the sequence. Breaking out of the loop
// stops the run before the next node.
func (e *Engine) Run(ctx context.Context, question string) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		e.run(ctx, question, nil, yield)
	}
}

// Result is the drained outcome of a run.
type Result struct {
	Final    domain.State
	Trace    []domain.Event
	Outcome  domain.Outcome
	Exceeded *domain.LoopBoundExceededError
}

// Execute drains a run. On error the partial result gathered so far is returned with it.
func (e *Engine) Execute(ctx context.Context, question string) (*Result, error) {
	res := &Result{Final: domain.NewState(question)}
	var runErr error
	e.run(ctx, question, &res.Final, func(ev domain.Event, err error) bool {
		if err != nil {
			runErr = err
			return false
		}
		res.Trace = append(res.Trace, ev)
		if ev.IsTerminal() {
			res.Outcome = ev.Outcome
			res.Exceeded = ev.Exceeded
		}
		return true
	})
	return res, runErr
}

func (e *Engine) run(ctx context.Context, question string, final *domain.State, yield func(domain.Event, error) bool) {
	runID := e.newID()
	start := time.Now()
	logger := e.logger.With("run_id", runID)

	ctx, span := tracer.Start(ctx, "ragloop.Run", trace.WithAttributes(
		attribute.String("ragloop.run_id", runID),
	))
	defer span.End()

	var (
		outcome domain.Outcome
		runErr  error
	)
	e.emitRunStart(ctx, runID, question)
	defer func() {
		if runErr != nil {
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
			logger.Error("run failed", "err", runErr, "duration", time.Since(start))
		} else {
			span.SetAttributes(attribute.String("ragloop.outcome", string(outcome)))
			span.SetStatus(codes.Ok, "")
			logger.Debug("run finished", "outcome", outcome, "duration", time.Since(start))
		}
		e.emitRunEnd(ctx, runID, question, outcome, runErr, time.Since(start))
	}()

	fail := func(err error) {
		runErr = err
		yield(domain.Event{}, err)
	}

	if strings.TrimSpace(question) == "" {
		fail(&domain.ConfigurationError{Where: "run", Reason: "question must not be empty"})
		return
	}

	state := domain.NewState(question)
	current := domain.NodeStart
	step := 0
	for {
		if err := ctx.Err(); err != nil {
			fail(&domain.CancelledError{Node: current, Cause: err})
			return
		}

		next, exceeded, err := e.resolve(ctx, runID, current, &state)
		if err != nil {
			fail(err)
			return
		}

		if exceeded != nil || next == domain.NodeEnd {
			ev := domain.Event{Step: step + 1, Node: domain.NodeEnd, Outcome: domain.OutcomeAnswered}
			if exceeded != nil {
				ev.Outcome = domain.OutcomeBounded
				ev.Exceeded = exceeded
				logger.Warn("loop bound exceeded", "loop", exceeded.Edge, "bound", exceeded.Bound)
			}
			outcome = ev.Outcome
			if final != nil {
				*final = state.Snapshot()
			}
			e.publish(ctx, logger, runID, ev)
			yield(ev, nil)
			return
		}

		if err := ctx.Err(); err != nil {
			fail(&domain.CancelledError{Node: next, Cause: err})
			return
		}

		step++
		patch, err := e.execute(ctx, runID, step, next, state)
		if err != nil {
			fail(err)
			return
		}
		state = domain.Merge(state, patch)
		if final != nil {
			*final = state.Snapshot()
		}

		ev := domain.Event{Step: step, Node: next, Patch: patch}
		e.publish(ctx, logger, runID, ev)
		if !yield(ev, nil) {
			logger.Debug("run stopped by caller", "node", next)
			return
		}
		current = next
	}
}

// execute runs one node step on a snapshot of the state.
func (e *Engine) execute(ctx context.Context, runID string, step int, id domain.NodeID, state domain.State) (domain.StatePatch, error) {
	ctx, span := tracer.Start(ctx, "ragloop.node."+string(id), trace.WithAttributes(
		attribute.String("ragloop.node", string(id)),
		attribute.Int("ragloop.step", step),
	))
	defer span.End()

	e.emitNodeEnter(ctx, runID, id, step)
	start := time.Now()
	patch, err := e.steps[id](ctx, state.Snapshot())
	e.emitNodeLeave(ctx, runID, id, step, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.StatePatch{}, err
	}
	span.SetAttributes(attribute.StringSlice("ragloop.patch_keys", patch.Keys()))
	span.SetStatus(codes.Ok, "")
	return patch, nil
}

// resolve selects the node following current. Traversing a loop edge increments its
// counter in state; a traversal beyond the bound is reported instead of taken.
func (e *Engine) resolve(ctx context.Context, runID string, current domain.NodeID, state *domain.State) (domain.NodeID, *domain.LoopBoundExceededError, error) {
	t, ok := e.graph.Transitions[current]
	if !ok {
		return "", nil, &domain.ConfigurationError{Where: string(current), Reason: "node has no outgoing transition"}
	}

	next, label := t.To, ""
	if t.IsConditional() {
		r := e.routers[t.Router]
		var err error
		label, err = r.Decide(ctx, state.Snapshot())
		if err != nil {
			return "", nil, err
		}
		to, ok := t.Branches[label]
		if !ok {
			return "", nil, domain.UnknownLabel(string(t.Router), label, r.Labels)
		}
		next = to
		e.emitRoute(ctx, runID, current, t.Router, label, next)
	}

	loop, ok := e.graph.Loop(current, label)
	if !ok {
		return next, nil, nil
	}
	count := state.LoopCounters[loop.ID] + 1
	bound := e.bounds[loop.ID]
	e.emitLoopTraversal(ctx, runID, loop.ID, count, bound)
	if count > bound {
		return "", &domain.LoopBoundExceededError{Edge: loop.ID, Count: count, Bound: bound}, nil
	}
	state.LoopCounters[loop.ID] = count
	return next, nil, nil
}

func (e *Engine) publish(ctx context.Context, logger *slog.Logger, runID string, ev domain.Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, runID, ev); err != nil {
		logger.Warn("trace sink publish failed", "node", ev.Node, "err", err)
	}
}
