// Package config loads the settings shared by every ragloop command.
//
// Values come from three layers applied in order: built-in defaults, an optional
// YAML or JSON file, and RAGLOOP_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit path is given. Its absence is not an error.
const DefaultPath = "ragloop.yaml"

// Retriever backends.
const (
	BackendMemory   = "memory"
	BackendWeaviate = "weaviate"
	BackendPgvector = "pgvector"
	BackendEnsemble = "ensemble"
)

// Config is the full application configuration.
type Config struct {
	Log       Log       `yaml:"log" json:"log"`
	Engine    Engine    `yaml:"engine" json:"engine"`
	OpenAI    OpenAI    `yaml:"openai" json:"openai"`
	Retriever Retriever `yaml:"retriever" json:"retriever"`
	Trace     Trace     `yaml:"trace" json:"trace"`
	Server    Server    `yaml:"server" json:"server"`
}

type Log struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

// Engine tunes the graph run.
type Engine struct {
	RewriteBound     int           `yaml:"rewrite_bound" json:"rewrite_bound" validate:"gte=1"`
	RegenerateBound  int           `yaml:"regenerate_bound" json:"regenerate_bound" validate:"gte=1"`
	CallTimeout      time.Duration `yaml:"call_timeout" json:"call_timeout" validate:"gt=0"`
	GradeConcurrency int           `yaml:"grade_concurrency" json:"grade_concurrency" validate:"gte=1"`
	PreviewWidth     int           `yaml:"preview_width" json:"preview_width" validate:"gte=0"`
	Fallback         string        `yaml:"fallback" json:"fallback" validate:"oneof=no_answer best_effort"`
}

type OpenAI struct {
	APIKey            string  `yaml:"api_key" json:"api_key"`
	BaseURL           string  `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	ChatModel         string  `yaml:"chat_model" json:"chat_model"`
	EmbeddingModel    string  `yaml:"embedding_model" json:"embedding_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	Temperature       float32 `yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	// GradeUsefulness enables the answer-vs-question check.
	GradeUsefulness bool `yaml:"grade_usefulness" json:"grade_usefulness"`
}

// Retriever selects and tunes the document source.
type Retriever struct {
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory weaviate pgvector ensemble"`
	TopK    int    `yaml:"top_k" json:"top_k" validate:"gte=1"`
	// Threshold is the minimum similarity for vector backends, in [0, 1].
	Threshold  float64 `yaml:"threshold" json:"threshold" validate:"gte=0,lte=1"`
	CorpusPath string  `yaml:"corpus" json:"corpus" validate:"required_if=Backend memory,required_if=Backend ensemble"`
	// Vector is the dense member of an ensemble.
	Vector        string   `yaml:"vector" json:"vector" validate:"omitempty,oneof=weaviate pgvector"`
	VectorWeight  float64  `yaml:"vector_weight" json:"vector_weight" validate:"gte=0"`
	KeywordWeight float64  `yaml:"keyword_weight" json:"keyword_weight" validate:"gte=0"`
	Weaviate      Weaviate `yaml:"weaviate" json:"weaviate"`
	Postgres      Postgres `yaml:"postgres" json:"postgres"`
}

type Weaviate struct {
	Host   string `yaml:"host" json:"host"`
	Scheme string `yaml:"scheme" json:"scheme" validate:"omitempty,oneof=http https"`
	Class  string `yaml:"class" json:"class"`
}

type Postgres struct {
	DSN   string `yaml:"dsn" json:"dsn"`
	Table string `yaml:"table" json:"table"`
}

// Trace configures the Redis trace sink. An empty address disables it.
type Trace struct {
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	Password  string        `yaml:"password" json:"password"`
	DB        int           `yaml:"db" json:"db" validate:"gte=0"`
	Prefix    string        `yaml:"prefix" json:"prefix"`
	MaxLen    int64         `yaml:"max_len" json:"max_len" validate:"gte=0"`
	TTL       time.Duration `yaml:"ttl" json:"ttl" validate:"gte=0"`
	// Redact lists regular expressions masked in published events.
	Redact []string `yaml:"redact" json:"redact"`
}

type Server struct {
	Addr    string `yaml:"addr" json:"addr" validate:"required"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: Log{Level: "info", Format: "text"},
		Engine: Engine{
			RewriteBound:     3,
			RegenerateBound:  3,
			CallTimeout:      30 * time.Second,
			GradeConcurrency: 4,
			PreviewWidth:     80,
			Fallback:         "no_answer",
		},
		Retriever: Retriever{
			Backend:       BackendMemory,
			TopK:          2,
			Threshold:     0.5,
			Vector:        BackendWeaviate,
			VectorWeight:  0.2,
			KeywordWeight: 0.8,
			Weaviate:      Weaviate{Host: "localhost:8080", Scheme: "http", Class: "Document"},
			Postgres:      Postgres{Table: "documents"},
		},
		Trace:  Trace{Prefix: "ragloop:trace:", TTL: 24 * time.Hour},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads path over the defaults, applies the environment and validates the result.
// An empty path falls back to DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := readFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !json.Valid(data) {
			return fmt.Errorf("failed to parse %s: invalid JSON", path)
		}
	}
	// JSON is decoded through yaml too so durations such as "30s" parse the same way.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Retriever.VectorBackend() {
	case BackendPgvector:
		if c.Retriever.Postgres.DSN == "" {
			return errors.New("invalid config: retriever.postgres.dsn is required for pgvector")
		}
	case BackendWeaviate:
		if c.Retriever.Weaviate.Host == "" {
			return errors.New("invalid config: retriever.weaviate.host is required for weaviate")
		}
	}
	return nil
}

// VectorBackend names the dense backend in use, or "" for a keyword-only setup.
func (r Retriever) VectorBackend() string {
	switch r.Backend {
	case BackendWeaviate, BackendPgvector:
		return r.Backend
	case BackendEnsemble:
		return r.Vector
	}
	return ""
}

// applyEnv overlays environment variables. lookup is os.LookupEnv outside tests.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*dst = n
			return err
		}
	}
	durVar := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			*dst = d
			return err
		}
	}

	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("RAGLOOP_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("RAGLOOP_OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("RAGLOOP_CHAT_MODEL", &cfg.OpenAI.ChatModel)
	str("RAGLOOP_EMBEDDING_MODEL", &cfg.OpenAI.EmbeddingModel)
	str("RAGLOOP_LOG_LEVEL", &cfg.Log.Level)
	str("RAGLOOP_LOG_FORMAT", &cfg.Log.Format)
	str("RAGLOOP_FALLBACK", &cfg.Engine.Fallback)
	str("RAGLOOP_RETRIEVER", &cfg.Retriever.Backend)
	str("RAGLOOP_CORPUS", &cfg.Retriever.CorpusPath)
	str("RAGLOOP_WEAVIATE_HOST", &cfg.Retriever.Weaviate.Host)
	str("RAGLOOP_POSTGRES_DSN", &cfg.Retriever.Postgres.DSN)
	str("RAGLOOP_REDIS_ADDR", &cfg.Trace.RedisAddr)
	str("RAGLOOP_REDIS_PASSWORD", &cfg.Trace.Password)
	str("RAGLOOP_ADDR", &cfg.Server.Addr)

	num("RAGLOOP_REWRITE_BOUND", intVar(&cfg.Engine.RewriteBound))
	num("RAGLOOP_REGENERATE_BOUND", intVar(&cfg.Engine.RegenerateBound))
	num("RAGLOOP_TOP_K", intVar(&cfg.Retriever.TopK))
	num("RAGLOOP_CALL_TIMEOUT", durVar(&cfg.Engine.CallTimeout))
	num("RAGLOOP_TRACE_TTL", durVar(&cfg.Trace.TTL))
	num("RAGLOOP_GRADE_USEFULNESS", func(v string) error {
		b, err := strconv.ParseBool(v)
		cfg.OpenAI.GradeUsefulness = b
		return err
	})

	return errors.Join(errs...)
}
