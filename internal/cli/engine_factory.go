package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/internal/config"
	"github.com/aretw0/ragloop/internal/logging"
	"github.com/aretw0/ragloop/pkg/adapters/ensemble"
	"github.com/aretw0/ragloop/pkg/adapters/memory"
	"github.com/aretw0/ragloop/pkg/adapters/openai"
	"github.com/aretw0/ragloop/pkg/adapters/pgvector"
	"github.com/aretw0/ragloop/pkg/adapters/redis"
	"github.com/aretw0/ragloop/pkg/adapters/weaviate"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/observability"
	"github.com/aretw0/ragloop/pkg/persistence/middleware"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// BuildOptions adjusts how Build assembles the application.
type BuildOptions struct {
	// Debug forces debug logging and installs the audit hooks.
	Debug bool
	// Collaborators replaces the OpenAI-backed collaborators. A nil Retriever
	// inside it is still built from the retriever config.
	Collaborators *ports.Collaborators
	// Sinks receive every trace event in addition to the configured Redis sink.
	Sinks []ports.TraceSink
}

// App is an engine assembled from configuration together with the resources it owns.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Engine   *ragloop.Engine
	Registry *prometheus.Registry
	// Traces is nil unless trace.redis_addr is set.
	Traces *redis.Sink

	closers []func() error
}

// Build initializes the engine and its collaborators with standard CLI conventions.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (*App, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		level = slog.LevelDebug
	}

	app := &App{
		Config:   cfg,
		Logger:   logging.New(level, cfg.Log.Format),
		Registry: prometheus.NewRegistry(),
	}

	collab, err := app.collaborators(ctx, opts.Collaborators)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	engineOpts, err := app.engineOptions(opts)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	engine, err := ragloop.New(collab, engineOpts...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

func (a *App) engineOptions(opts BuildOptions) ([]ragloop.Option, error) {
	ec := a.Config.Engine
	policy, err := ragloop.ParseFallbackPolicy(ec.Fallback)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(a.Registry)
	engineOpts := []ragloop.Option{
		ragloop.WithLogger(a.Logger),
		ragloop.WithLoopBounds(ec.RewriteBound, ec.RegenerateBound),
		ragloop.WithCallTimeout(ec.CallTimeout),
		ragloop.WithGradeConcurrency(ec.GradeConcurrency),
		ragloop.WithPreviewWidth(ec.PreviewWidth),
		ragloop.WithFallbackPolicy(policy),
		ragloop.WithLifecycleHooks(metrics.Hooks()),
	}
	if opts.Debug {
		engineOpts = append(engineOpts, ragloop.WithLifecycleHooks(observability.LoggingHooks(a.Logger)))
	}

	sinks := append([]ports.TraceSink(nil), opts.Sinks...)
	if tc := a.Config.Trace; tc.RedisAddr != "" {
		sinkOpts := []redis.Option{redis.WithTTL(tc.TTL), redis.WithMaxLen(tc.MaxLen)}
		if tc.Prefix != "" {
			sinkOpts = append(sinkOpts, redis.WithPrefix(tc.Prefix))
		}
		a.Traces = redis.New(tc.RedisAddr, tc.Password, tc.DB, sinkOpts...)
		a.closers = append(a.closers, a.Traces.Close)

		redact, err := middleware.NewPIIMiddleware(tc.Redact)
		if err != nil {
			return nil, &domain.ConfigurationError{Where: "trace", Reason: err.Error()}
		}
		sinks = append(sinks, middleware.Chain(a.Traces, redact))
	}
	if len(sinks) > 0 {
		engineOpts = append(engineOpts, ragloop.WithTraceSink(ports.FanOut(sinks...)))
	}
	return engineOpts, nil
}

// collaborators resolves the retriever and the language model collaborators.
// An OpenAI client is only created when something needs it.
func (a *App) collaborators(ctx context.Context, override *ports.Collaborators) (ports.Collaborators, error) {
	if override != nil && override.Retriever != nil {
		return *override, nil
	}

	var client *openai.Client
	if override == nil || a.Config.Retriever.VectorBackend() != "" {
		oc := a.Config.OpenAI
		c, err := openai.New(openai.Config{
			APIKey:            oc.APIKey,
			BaseURL:           oc.BaseURL,
			ChatModel:         oc.ChatModel,
			EmbeddingModel:    oc.EmbeddingModel,
			RequestsPerSecond: oc.RequestsPerSecond,
			Temperature:       oc.Temperature,
		}, openai.WithLogger(a.Logger))
		if err != nil {
			return ports.Collaborators{}, &domain.ConfigurationError{Where: "openai", Reason: err.Error()}
		}
		client = c
	}

	var embedder ports.Embedder
	if client != nil {
		embedder = client
	}
	retriever, err := a.retriever(ctx, embedder)
	if err != nil {
		return ports.Collaborators{}, err
	}

	if override != nil {
		c := *override
		c.Retriever = retriever
		return c, nil
	}
	return client.Collaborators(retriever, a.Config.OpenAI.GradeUsefulness), nil
}

func (a *App) retriever(ctx context.Context, embedder ports.Embedder) (ports.Retriever, error) {
	rc := a.Config.Retriever
	switch rc.Backend {
	case config.BackendMemory:
		return memory.NewFromFile(rc.CorpusPath, memory.WithTopK(rc.TopK))
	case config.BackendWeaviate, config.BackendPgvector:
		return a.vectorRetriever(ctx, rc.Backend, embedder)
	case config.BackendEnsemble:
		keyword, err := memory.NewFromFile(rc.CorpusPath, memory.WithTopK(rc.TopK))
		if err != nil {
			return nil, err
		}
		members := []ensemble.Member{{Name: "keyword", Retriever: keyword, Weight: rc.KeywordWeight}}
		if rc.Vector != "" {
			vector, err := a.vectorRetriever(ctx, rc.Vector, embedder)
			if err != nil {
				return nil, err
			}
			members = append(members, ensemble.Member{Name: rc.Vector, Retriever: vector, Weight: rc.VectorWeight})
		}
		return ensemble.New(members, ensemble.WithTopK(rc.TopK))
	}
	return nil, &domain.ConfigurationError{Where: "retriever", Reason: fmt.Sprintf("unknown backend %q", rc.Backend)}
}

func (a *App) vectorRetriever(ctx context.Context, backend string, embedder ports.Embedder) (ports.Retriever, error) {
	rc := a.Config.Retriever
	if embedder == nil {
		return nil, &domain.ConfigurationError{Where: "retriever", Reason: backend + " needs an embedder"}
	}

	switch backend {
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(rc.Weaviate.Host, rc.Weaviate.Scheme)
		if err != nil {
			return nil, err
		}
		opts := []weaviate.Option{
			weaviate.WithTopK(rc.TopK),
			weaviate.WithMinCertainty(float32(rc.Threshold)),
		}
		if rc.Weaviate.Class != "" {
			opts = append(opts, weaviate.WithClass(rc.Weaviate.Class))
		}
		return weaviate.New(client, embedder, opts...)
	case config.BackendPgvector:
		pool, err := pgvector.Connect(ctx, rc.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		opts := []pgvector.Option{
			pgvector.WithTopK(rc.TopK),
			// cosine distance is 1 - similarity
			pgvector.WithMaxDistance(1 - rc.Threshold),
		}
		if rc.Postgres.Table != "" {
			opts = append(opts, pgvector.WithTable(rc.Postgres.Table))
		}
		return pgvector.New(pool, embedder, opts...)
	}
	return nil, &domain.ConfigurationError{Where: "retriever", Reason: fmt.Sprintf("unknown vector backend %q", backend)}
}

// ErrOffline is returned by every collaborator of OfflineCollaborators.
var ErrOffline = errors.New("collaborator not available offline")

// OfflineCollaborators satisfies the engine without any backend, for commands that only
// inspect the topology or stored traces.
func OfflineCollaborators() ports.Collaborators {
	classify := ports.ClassifierFunc(func(context.Context, ports.PromptKind, map[string]string) (ports.Decision, error) {
		return nil, ErrOffline
	})
	generate := ports.GeneratorFunc(func(context.Context, map[string]string) (string, error) {
		return "", ErrOffline
	})
	return ports.Collaborators{
		Retriever: ports.RetrieverFunc(func(context.Context, string) ([]domain.Document, error) {
			return nil, ErrOffline
		}),
		Router:             classify,
		RelevanceGrader:    classify,
		GroundednessGrader: classify,
		GeneralAnswerer:    generate,
		GroundedAnswerer:   generate,
		QuestionRewriter:   generate,
	}
}

// Close releases connections held by the app.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
