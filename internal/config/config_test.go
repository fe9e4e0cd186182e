package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func withCorpus(cfg Config) Config {
	cfg.Retriever.CorpusPath = "corpus.json"
	return cfg
}

func TestDefault_NeedsOnlyACorpus(t *testing.T) {
	assert.Error(t, Default().Validate(), "memory backend requires a corpus")
	assert.NoError(t, withCorpus(Default()).Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "ragloop.yaml", `
log:
  level: debug
  format: json
engine:
  rewrite_bound: 5
  call_timeout: 10s
  fallback: best_effort
retriever:
  backend: ensemble
  corpus: docs.json
  vector: pgvector
  postgres:
    dsn: postgres://localhost/rag
trace:
  redis_addr: localhost:6379
  ttl: 1h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Engine.RewriteBound)
	assert.Equal(t, 3, cfg.Engine.RegenerateBound, "untouched fields keep defaults")
	assert.Equal(t, 10*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, "best_effort", cfg.Engine.Fallback)
	assert.Equal(t, BackendPgvector, cfg.Retriever.VectorBackend())
	assert.Equal(t, "documents", cfg.Retriever.Postgres.Table)
	assert.Equal(t, time.Hour, cfg.Trace.TTL)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "ragloop.json", `{
  "engine": {"regenerate_bound": 2, "call_timeout": "5s"},
  "retriever": {"corpus": "docs.json", "top_k": 4}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.RegenerateBound)
	assert.Equal(t, 5*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, 4, cfg.Retriever.TopK)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeFile(t, "ragloop.json", `engine: {}`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_DefaultPathIsOptional(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RAGLOOP_CORPUS", "docs.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "docs.json", cfg.Retriever.CorpusPath)
}

func TestLoad_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero bound", "engine: {rewrite_bound: 0}", "RewriteBound"},
		{"unknown fallback", "engine: {fallback: retry}", "Fallback"},
		{"unknown backend", "retriever: {backend: elastic}", "Backend"},
		{"threshold above one", "retriever: {threshold: 1.5}", "Threshold"},
		{"bad log level", "log: {level: trace}", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "c.yaml", tt.yaml+"\n")
			t.Setenv("RAGLOOP_CORPUS", "docs.json")
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_VectorBackendsNeedConnection(t *testing.T) {
	cfg := Default()
	cfg.Retriever.Backend = BackendPgvector
	assert.ErrorContains(t, cfg.Validate(), "postgres.dsn")

	cfg.Retriever.Postgres.DSN = "postgres://localhost/rag"
	assert.NoError(t, cfg.Validate())

	cfg = withCorpus(Default())
	cfg.Retriever.Backend = BackendEnsemble
	cfg.Retriever.Weaviate.Host = ""
	assert.ErrorContains(t, cfg.Validate(), "weaviate.host")

	cfg.Retriever.Vector = ""
	assert.NoError(t, cfg.Validate(), "keyword-only ensemble")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":           "sk-plain",
		"RAGLOOP_OPENAI_API_KEY":   "sk-ragloop",
		"RAGLOOP_REWRITE_BOUND":    "7",
		"RAGLOOP_CALL_TIMEOUT":     "2s",
		"RAGLOOP_GRADE_USEFULNESS": "true",
		"RAGLOOP_REDIS_ADDR":       "redis:6379",
		"RAGLOOP_LOG_LEVEL":        "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))
	assert.Equal(t, "sk-ragloop", cfg.OpenAI.APIKey, "prefixed variable wins")
	assert.Equal(t, 7, cfg.Engine.RewriteBound)
	assert.Equal(t, 2*time.Second, cfg.Engine.CallTimeout)
	assert.True(t, cfg.OpenAI.GradeUsefulness)
	assert.Equal(t, "redis:6379", cfg.Trace.RedisAddr)
	assert.Equal(t, "info", cfg.Log.Level, "empty values are ignored")
}

func TestApplyEnv_ReportsMalformedValues(t *testing.T) {
	env := map[string]string{
		"RAGLOOP_TOP_K":        "two",
		"RAGLOOP_CALL_TIMEOUT": "soon",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	err := applyEnv(&cfg, lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAGLOOP_TOP_K")
	assert.Contains(t, err.Error(), "RAGLOOP_CALL_TIMEOUT")
}
