package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/ragloop/internal/runtime"
	"github.com/aretw0/ragloop/internal/testutils"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_CancelledBeforeStart(t *testing.T) {
	rig := testutils.NewRig()
	eng := newEngine(t, rig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.Execute(ctx, "Spec of model X200 lamp")

	var cancelled *domain.CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, domain.NodeStart, cancelled.Node)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Trace)
	assert.Empty(t, rig.Router.Calls())
}

func TestEngine_CancelledBetweenNodes(t *testing.T) {
	rig := testutils.NewRig()
	ctx, cancel := context.WithCancel(context.Background())
	eng := newEngine(t, rig, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			if e.NodeID == domain.NodeRetrieve {
				cancel()
			}
		},
	}))

	res, err := eng.Execute(ctx, "Spec of model X200 lamp")

	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, []domain.NodeID{domain.NodeRetrieve}, nodeIDs(res.Trace))
	assert.Empty(t, rig.RelevanceGrader.Calls(), "no node runs after cancellation")
}

func TestEngine_LifecycleHooks(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever = testutils.NewRetriever([]domain.Document{}, []domain.Document{testutils.DocX200Spec})

	var (
		mu      sync.Mutex
		entered []domain.NodeID
		left    []domain.NodeID
		routes  []string
		loops   []domain.LoopEvent
		started int
		ended   *domain.RunEvent
	)
	hooks := domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			mu.Lock()
			defer mu.Unlock()
			started++
			assert.Equal(t, "run-1", e.RunID)
		},
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			entered = append(entered, e.NodeID)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			left = append(left, e.NodeID)
			assert.NoError(t, e.Err)
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			mu.Lock()
			defer mu.Unlock()
			routes = append(routes, string(e.Router)+":"+e.Label)
		},
		OnLoopTraversal: func(_ context.Context, e *domain.LoopEvent) {
			mu.Lock()
			defer mu.Unlock()
			loops = append(loops, *e)
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			mu.Lock()
			defer mu.Unlock()
			ended = e
		},
	}
	eng := newEngine(t, rig,
		runtime.WithLifecycleHooks(hooks),
		runtime.WithRunIDGenerator(func() string { return "run-1" }),
	)

	_, err := eng.Execute(context.Background(), "lamp?")
	require.NoError(t, err)

	want := []domain.NodeID{
		domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeTransformQuery,
		domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeGenerate,
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, want, entered)
	assert.Equal(t, want, left)
	assert.Equal(t, []string{
		"route_question:vectorstore",
		"decide_to_generate:transform_query",
		"decide_to_generate:generate",
		"grade_generation:useful",
	}, routes)
	assert.Equal(t, []domain.LoopEvent{{RunID: "run-1", Loop: domain.LoopRewrite, Count: 1, Bound: 3}}, loops)
	require.NotNil(t, ended)
	assert.Equal(t, domain.OutcomeAnswered, ended.Outcome)
	assert.NoError(t, ended.Err)
}

func TestEngine_RunEndReportsFailure(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever.Err = errors.New("index offline")

	var ended *domain.RunEvent
	var leaveErr error
	eng := newEngine(t, rig, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) { leaveErr = e.Err },
		OnRunEnd:    func(_ context.Context, e *domain.RunEvent) { ended = e },
	}))

	_, err := eng.Execute(context.Background(), "q")
	require.Error(t, err)

	assert.ErrorIs(t, leaveErr, domain.ErrNodeExecution)
	require.NotNil(t, ended)
	assert.ErrorIs(t, ended.Err, domain.ErrNodeExecution)
	assert.Empty(t, ended.Outcome)
}

type recordingSink struct {
	mu     sync.Mutex
	runIDs []string
	events []domain.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, runID string, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runIDs = append(s.runIDs, runID)
	s.events = append(s.events, ev)
	return s.err
}

func TestEngine_TraceSink(t *testing.T) {
	rig := testutils.NewRig()
	sink := &recordingSink{}
	eng := newEngine(t, rig, runtime.WithTraceSink(sink), runtime.WithRunIDGenerator(func() string { return "abc" }))

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)

	assert.Equal(t, res.Trace, sink.events)
	for _, id := range sink.runIDs {
		assert.Equal(t, "abc", id)
	}
}

func TestEngine_TraceSinkFailureIsNotFatal(t *testing.T) {
	rig := testutils.NewRig()
	sink := &recordingSink{err: errors.New("redis down")}
	eng := newEngine(t, rig, runtime.WithTraceSink(sink))

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
}
