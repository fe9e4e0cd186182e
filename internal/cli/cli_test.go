package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/ragloop/internal/config"
	"github.com/aretw0/ragloop/internal/testutils"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/aretw0/ragloop/pkg/runner"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Retriever.CorpusPath = testutils.SetupCorpusFile(t,
		testutils.DocX200Spec, testutils.DocX200Warranty, testutils.DocUnrelated)
	return cfg
}

// buildApp wires the scripted rig while keeping the configured retriever.
func buildApp(t *testing.T, cfg config.Config, rig *testutils.Rig, sinks ...ports.TraceSink) *App {
	t.Helper()
	collab := rig.Collaborators()
	collab.Retriever = nil
	app, err := Build(context.Background(), cfg, BuildOptions{Collaborators: &collab, Sinks: sinks})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestBuild_MemoryBackendFromCorpus(t *testing.T) {
	app := buildApp(t, testConfig(t), testutils.NewRig())

	ans, err := app.Engine.RunToCompletion(context.Background(), "How much power does the X200 draw?")
	require.NoError(t, err)
	assert.Equal(t, "The X200 draws 12 W.", ans.Text)
	assert.Equal(t, domain.OutcomeAnswered, ans.Outcome)

	topo := app.Engine.Inspect()
	assert.Equal(t, 3, topo.Bounds[domain.LoopRewrite])
}

func TestBuild_AppliesEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.RewriteBound = 1
	cfg.Engine.RegenerateBound = 2
	app := buildApp(t, cfg, testutils.NewRig())

	topo := app.Engine.Inspect()
	assert.Equal(t, 1, topo.Bounds[domain.LoopRewrite])
	assert.Equal(t, 2, topo.Bounds[domain.LoopRegenerate])
}

func TestBuild_Errors(t *testing.T) {
	t.Run("missing corpus", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Retriever.CorpusPath = "does-not-exist.yaml"
		collab := testutils.NewRig().Collaborators()
		collab.Retriever = nil

		_, err := Build(context.Background(), cfg, BuildOptions{Collaborators: &collab})
		assert.ErrorContains(t, err, "failed to read corpus")
	})

	t.Run("openai without credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.OpenAI.APIKey = ""
		cfg.OpenAI.BaseURL = ""

		_, err := Build(context.Background(), cfg, BuildOptions{})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Log.Level = "loud"

		_, err := Build(context.Background(), cfg, BuildOptions{})
		assert.Error(t, err)
	})
}

func TestBuild_OpenAICollaboratorsWithoutNetwork(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"

	app, err := Build(context.Background(), cfg, BuildOptions{})
	require.NoError(t, err)
	defer app.Close()
	assert.NotNil(t, app.Engine)
}

func TestBuild_EnsembleWithVectorMember(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retriever.Backend = config.BackendEnsemble
	cfg.Retriever.Vector = config.BackendWeaviate
	cfg.OpenAI.APIKey = "sk-test"
	collab := testutils.NewRig().Collaborators()
	collab.Retriever = nil

	app, err := Build(context.Background(), cfg, BuildOptions{Collaborators: &collab})
	require.NoError(t, err)
	defer app.Close()
	assert.NotNil(t, app.Engine)
}

func TestBuild_KeywordOnlyEnsemble(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retriever.Backend = config.BackendEnsemble
	cfg.Retriever.Vector = ""
	app := buildApp(t, cfg, testutils.NewRig())

	ans, err := app.Engine.RunToCompletion(context.Background(), "X200 lamp warranty")
	require.NoError(t, err)
	assert.False(t, ans.NoAnswer)
}

func TestAsk_SingleQuestionWithTrace(t *testing.T) {
	app := buildApp(t, testConfig(t), testutils.NewRig())
	var out bytes.Buffer

	err := Ask(context.Background(), app, AskOptions{
		Question: "How much power does the X200 draw?",
		Trace:    true,
		In:       strings.NewReader(""),
		Out:      &out,
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[1] retrieve -> documents")
	assert.Contains(t, text, "(answered)")
	assert.Contains(t, text, "The X200 draws 12 W.")
	n, err := testutil.GatherAndCount(app.Registry, "ragloop_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one outcome series")
}

func TestAsk_NoAnswerMessage(t *testing.T) {
	rig := testutils.NewRig()
	rig.RelevanceGrader = testutils.FixedDecision("score", "no")
	app := buildApp(t, testConfig(t), rig)
	var out bytes.Buffer

	err := Ask(context.Background(), app, AskOptions{Question: "X200?", In: strings.NewReader(""), Out: &out})
	require.NoError(t, err)
	assert.Contains(t, out.String(), runner.NoAnswerMessage)
}

func TestAsk_JSONSession(t *testing.T) {
	app := buildApp(t, testConfig(t), testutils.NewRig())
	var out bytes.Buffer
	in := strings.NewReader(`{"question": "What does the X200 draw?"}` + "\n" + `"X200 warranty?"` + "\n")

	err := Ask(context.Background(), app, AskOptions{JSON: true, In: in, Out: &out})
	require.NoError(t, err)

	var answers int
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var msg runner.Message
		require.NoError(t, json.Unmarshal(sc.Bytes(), &msg))
		if msg.Type == runner.MessageAnswer {
			answers++
			assert.Equal(t, "The X200 draws 12 W.", msg.Answer.Text)
		}
	}
	assert.Equal(t, 2, answers)
}

func TestAsk_NodeErrorIsReturned(t *testing.T) {
	rig := testutils.NewRig()
	rig.GroundedAnswerer.Err = assert.AnError
	app := buildApp(t, testConfig(t), rig)

	err := Ask(context.Background(), app, AskOptions{Question: "X200?", In: strings.NewReader(""), Out: &bytes.Buffer{}})
	assert.ErrorIs(t, err, domain.ErrNodeExecution)
}

func TestTraces_RoundTripThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Trace.RedisAddr = mr.Addr()
	app := buildApp(t, cfg, testutils.NewRig())
	ctx := context.Background()

	_, err := app.Engine.RunToCompletion(ctx, "How much power does the X200 draw?")
	require.NoError(t, err)

	var list bytes.Buffer
	require.NoError(t, ListTraces(ctx, app, &list))
	ids := strings.Fields(list.String())
	require.Len(t, ids, 1)

	var text bytes.Buffer
	require.NoError(t, ShowTrace(ctx, app, ids[0], TraceFormatText, &text))
	assert.Contains(t, text.String(), "[1] retrieve -> documents")
	assert.Contains(t, text.String(), "The X200 draws 12 W.")

	var mermaid bytes.Buffer
	require.NoError(t, ShowTrace(ctx, app, ids[0], TraceFormatMermaid, &mermaid))
	assert.Contains(t, mermaid.String(), "graph TD")

	var lines bytes.Buffer
	require.NoError(t, ShowTrace(ctx, app, ids[0], TraceFormatJSON, &lines))
	assert.Len(t, strings.Split(strings.TrimSpace(lines.String()), "\n"), 4)

	err = ShowTrace(ctx, app, "missing", TraceFormatText, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrTraceNotFound)

	err = ShowTrace(ctx, app, ids[0], "yaml", &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown format")
}

func TestTraces_Disabled(t *testing.T) {
	app := buildApp(t, testConfig(t), testutils.NewRig())

	assert.ErrorIs(t, ListTraces(context.Background(), app, &bytes.Buffer{}), ErrTracesDisabled)
	assert.ErrorIs(t, ShowTrace(context.Background(), app, "x", "", &bytes.Buffer{}), ErrTracesDisabled)
}

func TestNewHTTPHandler_MetricsOptIn(t *testing.T) {
	cfg := testConfig(t)
	app := buildApp(t, cfg, testutils.NewRig())

	rec := httptest.NewRecorder()
	NewHTTPHandler(app, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg.Server.Metrics = true
	app = buildApp(t, cfg, testutils.NewRig())
	_, err := app.Engine.RunToCompletion(context.Background(), "X200?")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	NewHTTPHandler(app, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ragloop_runs_total")
}

func TestServe_StopsOnCancel(t *testing.T) {
	app := buildApp(t, testConfig(t), testutils.NewRig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Serve(ctx, http.NotFoundHandler(), "127.0.0.1:0", app)
	assert.NoError(t, err)
}

func TestServeMCP_UnknownTransport(t *testing.T) {
	app := buildApp(t, testConfig(t), testutils.NewRig())
	err := ServeMCP(context.Background(), app, "websocket", 0)
	assert.ErrorContains(t, err, "unknown transport")
}

func TestOfflineCollaborators(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	offline := OfflineCollaborators()

	app, err := Build(context.Background(), cfg, BuildOptions{Collaborators: &offline})
	require.NoError(t, err, "no corpus or credentials needed")
	defer app.Close()

	_, err = app.Engine.RunToCompletion(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrOffline)
	assert.ErrorIs(t, err, domain.ErrNodeExecution)
}

func TestTraces_RedactedBeforeStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Trace.RedisAddr = mr.Addr()
	cfg.Trace.Redact = []string{`\d+ W`}
	app := buildApp(t, cfg, testutils.NewRig())
	ctx := context.Background()

	_, err := app.Engine.RunToCompletion(ctx, "How much power does the X200 draw?")
	require.NoError(t, err)

	ids, err := app.Traces.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	var out bytes.Buffer
	require.NoError(t, ShowTrace(ctx, app, ids[0], TraceFormatJSON, &out))
	assert.NotContains(t, out.String(), "12 W")
	assert.Contains(t, out.String(), "The X200 draws ***.")
}

func TestBuild_InvalidRedactPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trace.RedisAddr = "localhost:6379"
	cfg.Trace.Redact = []string{"("}
	collab := testutils.NewRig().Collaborators()
	collab.Retriever = nil

	_, err := Build(context.Background(), cfg, BuildOptions{Collaborators: &collab})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
