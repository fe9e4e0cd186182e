package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/ragloop/internal/nodes"
	"github.com/aretw0/ragloop/internal/routers"
	"github.com/aretw0/ragloop/internal/runtime"
	"github.com/aretw0/ragloop/internal/testutils"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, rig *testutils.Rig, opts ...runtime.Option) *runtime.Engine {
	t.Helper()
	reg := nodes.NewRegistry(rig.Collaborators())
	table := routers.NewTable(rig.Router, rig.GroundednessGrader)
	eng, err := runtime.NewEngine(runtime.CorrectiveRAG(), reg.Steps(), table.Routers(), opts...)
	require.NoError(t, err)
	return eng
}

func nodeIDs(trace []domain.Event) []domain.NodeID {
	out := make([]domain.NodeID, len(trace))
	for i, ev := range trace {
		out[i] = ev.Node
	}
	return out
}

func TestEngine_GeneralKnowledgePath(t *testing.T) {
	rig := testutils.NewRig()
	rig.Router = testutils.FixedDecision("datasource", domain.LabelNormalLLM)
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{domain.NodeNormalLLM, domain.NodeEnd}, nodeIDs(res.Trace))
	assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
	assert.Equal(t, "Paris is the capital of France.", res.Final.Generation)
	assert.Empty(t, rig.Retriever.Calls())
	assert.Empty(t, rig.GroundednessGrader.Calls())
}

func TestEngine_RetrievalPath(t *testing.T) {
	rig := testutils.NewRig()
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{
		domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeGenerate, domain.NodeEnd,
	}, nodeIDs(res.Trace))
	assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
	assert.Nil(t, res.Exceeded)
	assert.Equal(t, "The X200 draws 12 W.", res.Final.Generation)
	assert.Len(t, res.Final.Documents, 2)
	assert.Len(t, rig.Retriever.Calls(), 1)
	assert.Len(t, rig.RelevanceGrader.Calls(), 2)

	for i, ev := range res.Trace {
		assert.Equal(t, i+1, ev.Step)
	}
	assert.Equal(t, []string{"documents"}, res.Trace[0].Patch.Keys())
	assert.Equal(t, []string{"generation"}, res.Trace[2].Patch.Keys())
	assert.True(t, res.Trace[3].Patch.IsEmpty())
}

func TestEngine_RewriteLoopIsBounded(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever = testutils.NewRetriever([]domain.Document{})
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeBounded, res.Outcome)
	require.NotNil(t, res.Exceeded)
	assert.Equal(t, domain.LoopRewrite, res.Exceeded.Edge)
	assert.Equal(t, 4, res.Exceeded.Count)
	assert.Equal(t, 3, res.Exceeded.Bound)
	assert.ErrorIs(t, res.Exceeded, domain.ErrLoopBoundExceeded)

	assert.Len(t, rig.Retriever.Calls(), 4)
	assert.Len(t, rig.QuestionRewriter.Calls(), 3)
	assert.Empty(t, rig.GroundedAnswerer.Calls())
	assert.Equal(t, 3, res.Final.LoopCounters[domain.LoopRewrite])
	assert.Empty(t, res.Final.Generation)

	last := res.Trace[len(res.Trace)-1]
	assert.True(t, last.IsTerminal())
	assert.Equal(t, domain.OutcomeBounded, last.Outcome)
}

func TestEngine_RewriteThenGenerate(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever = testutils.NewRetriever([]domain.Document{testutils.DocUnrelated}, []domain.Document{testutils.DocX200Spec})
	rig.RelevanceGrader = testutils.RelevantSources(testutils.DocX200Spec)
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "lamp?")
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{
		domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeTransformQuery,
		domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeGenerate, domain.NodeEnd,
	}, nodeIDs(res.Trace))
	assert.Equal(t, []string{"lamp?", "X200 lamp technical specification"}, rig.Retriever.Calls())
	assert.Equal(t, "X200 lamp technical specification", res.Final.Question)
	assert.Equal(t, 1, res.Final.LoopCounters[domain.LoopRewrite])
	assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
}

func TestEngine_RegenerateLoopIsBounded(t *testing.T) {
	rig := testutils.NewRig()
	rig.GroundednessGrader = testutils.FixedDecision("score", domain.ScoreNo)
	rig.GroundedAnswerer = testutils.NewGenerator("draft 1", "draft 2", "draft 3", "draft 4")
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeBounded, res.Outcome)
	require.NotNil(t, res.Exceeded)
	assert.Equal(t, domain.LoopRegenerate, res.Exceeded.Edge)
	assert.Len(t, rig.GroundedAnswerer.Calls(), 4)
	assert.Equal(t, "draft 4", res.Final.Generation)
}

func TestEngine_RegenerateRecovers(t *testing.T) {
	rig := testutils.NewRig()
	rig.GroundednessGrader = testutils.SequenceDecisions("score", domain.ScoreNo, domain.ScoreYes)
	rig.GroundedAnswerer = testutils.NewGenerator("hallucinated", "grounded")
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{
		domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeGenerate, domain.NodeGenerate, domain.NodeEnd,
	}, nodeIDs(res.Trace))
	assert.Equal(t, "grounded", res.Final.Generation)
	assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
}

func TestEngine_CustomBounds(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever = testutils.NewRetriever([]domain.Document{})
	eng := newEngine(t, rig, runtime.WithLoopBound(domain.LoopRewrite, 0))

	res, err := eng.Execute(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{domain.NodeRetrieve, domain.NodeGradeDocuments, domain.NodeEnd}, nodeIDs(res.Trace))
	assert.Equal(t, 1, res.Exceeded.Count)
	assert.Empty(t, rig.QuestionRewriter.Calls())
}

func TestEngine_NegativeBoundRejected(t *testing.T) {
	rig := testutils.NewRig()
	reg := nodes.NewRegistry(rig.Collaborators())
	table := routers.NewTable(rig.Router, rig.GroundednessGrader)

	_, err := runtime.NewEngine(runtime.CorrectiveRAG(), reg.Steps(), table.Routers(), runtime.WithLoopBound(domain.LoopRegenerate, -1))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEngine_EmptyQuestion(t *testing.T) {
	rig := testutils.NewRig()
	eng := newEngine(t, rig)

	for _, q := range []string{"", "   "} {
		res, err := eng.Execute(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.Empty(t, res.Trace)
	}
	assert.Empty(t, rig.Router.Calls())
}

func TestEngine_RunIsLazy(t *testing.T) {
	rig := testutils.NewRig()
	eng := newEngine(t, rig)

	seq := eng.Run(context.Background(), "Spec of model X200 lamp")
	assert.Empty(t, rig.Router.Calls(), "nothing runs before iteration")

	var seen []domain.NodeID
	for ev, err := range seq {
		require.NoError(t, err)
		seen = append(seen, ev.Node)
		if ev.Node == domain.NodeRetrieve {
			break
		}
	}

	assert.Equal(t, []domain.NodeID{domain.NodeRetrieve}, seen)
	assert.Empty(t, rig.RelevanceGrader.Calls())
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() []domain.Event {
		rig := testutils.NewRig()
		rig.Retriever = testutils.NewRetriever([]domain.Document{}, []domain.Document{testutils.DocX200Spec})
		rig.GroundednessGrader = testutils.SequenceDecisions("score", domain.ScoreNo, domain.ScoreYes)
		eng := newEngine(t, rig)
		res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
		require.NoError(t, err)
		return res.Trace
	}

	assert.Equal(t, run(), run())
}

func TestEngine_SameEngineTwice(t *testing.T) {
	rig := testutils.NewRig()
	eng := newEngine(t, rig)

	first, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)
	second, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Final, second.Final)
}

func TestEngine_ConcurrentRuns(t *testing.T) {
	rig := testutils.NewRig()
	eng := newEngine(t, rig)

	var wg sync.WaitGroup
	results := make([]*runtime.Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, domain.OutcomeAnswered, res.Outcome)
		assert.Empty(t, res.Final.LoopCounters[domain.LoopRewrite])
	}
	assert.Len(t, rig.Retriever.Calls(), 8)
}

func TestEngine_NodeFailureAborts(t *testing.T) {
	rig := testutils.NewRig()
	rig.GroundedAnswerer.Err = errors.New("model overloaded")
	eng := newEngine(t, rig)

	res, err := eng.Execute(context.Background(), "Spec of model X200 lamp")

	var nodeErr *domain.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "generate", nodeErr.Node)
	assert.Equal(t, []domain.NodeID{domain.NodeRetrieve, domain.NodeGradeDocuments}, nodeIDs(res.Trace))
	assert.Empty(t, rig.GroundednessGrader.Calls())
}

func TestEngine_UnknownRouteAborts(t *testing.T) {
	rig := testutils.NewRig()
	rig.Router = testutils.FixedDecision("datasource", "web_search")
	eng := newEngine(t, rig)

	var errs []error
	for _, err := range eng.Run(context.Background(), "q") {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrConfiguration)
	assert.Empty(t, rig.Retriever.Calls())
	assert.Empty(t, rig.GeneralAnswerer.Calls())
}

func TestEngine_RunStopsAfterError(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever.Err = errors.New("index offline")
	eng := newEngine(t, rig)

	count := 0
	for _, err := range eng.Run(context.Background(), "q") {
		count++
		assert.ErrorIs(t, err, domain.ErrNodeExecution)
	}
	assert.Equal(t, 1, count)
}
