// Package openai provides classifier, generator and embedder collaborators backed by
// an OpenAI compatible chat completion API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"strings"

	"github.com/aretw0/ragloop/pkg/ports"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Config holds the connection settings of the adapter.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	// RequestsPerSecond throttles calls client side. Zero disables throttling.
	RequestsPerSecond float64
	Temperature       float32
}

// Client issues chat and embedding requests. It holds no per-run state and is safe
// for concurrent use.
type Client struct {
	api            *goopenai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
	limiter        *rate.Limiter
	prompts        promptSet
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	prompts Prompts
	logger  *slog.Logger
}

// WithPrompts overrides individual prompt templates.
func WithPrompts(p Prompts) Option {
	return func(o *options) {
		maps.Copy(o.prompts, p)
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	o := &options{prompts: DefaultPrompts()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: api key is required")
	}
	prompts, err := compilePrompts(o.prompts)
	if err != nil {
		return nil, err
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	c := &Client{
		api:            goopenai.NewClientWithConfig(apiCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		prompts:        prompts,
		logger:         o.logger,
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// Classify renders the prompt of kind and decodes the JSON object returned by the model.
func (c *Client) Classify(ctx context.Context, kind ports.PromptKind, vars map[string]string) (ports.Decision, error) {
	content, err := c.complete(ctx, kind, vars, true)
	if err != nil {
		return nil, err
	}
	var decision ports.Decision
	if err := json.Unmarshal([]byte(stripFence(content)), &decision); err != nil {
		return nil, fmt.Errorf("openai: %s returned malformed JSON %q: %w", kind, content, err)
	}
	return decision, nil
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai: embedding response has no data")
	}
	return resp.Data[0].Embedding, nil
}

// Classifier returns the client as a Classifier.
func (c *Client) Classifier() ports.Classifier {
	return c
}

// Generator returns a Generator rendering the prompt of kind.
func (c *Client) Generator(kind ports.PromptKind) ports.Generator {
	return ports.GeneratorFunc(func(ctx context.Context, vars map[string]string) (string, error) {
		out, err := c.complete(ctx, kind, vars, false)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(out), nil
	})
}

// Collaborators builds every language model collaborator of the graph around retriever.
func (c *Client) Collaborators(retriever ports.Retriever, withUsefulness bool) ports.Collaborators {
	collab := ports.Collaborators{
		Retriever:          retriever,
		Router:             c,
		RelevanceGrader:    c,
		GroundednessGrader: c,
		GeneralAnswerer:    c.Generator(ports.PromptAnswerGeneral),
		GroundedAnswerer:   c.Generator(ports.PromptAnswerGrounded),
		QuestionRewriter:   c.Generator(ports.PromptRewriteQuestion),
	}
	if withUsefulness {
		collab.UsefulnessGrader = c
	}
	return collab
}

// requestTemperature keeps a zero temperature on the wire. go-openai omits a zero
// value, which lets the server fall back to its own default of 1.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func (c *Client) complete(ctx context.Context, kind ports.PromptKind, vars map[string]string, jsonMode bool) (string, error) {
	prompt, err := c.prompts.render(kind, vars)
	if err != nil {
		return "", err
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	req := goopenai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: requestTemperature(c.temperature),
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.logger.Debug("openai chat request", "kind", kind, "model", c.chatModel)
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %s request failed: %w", kind, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %s returned no choices", kind)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("openai: rate limiter: %w", err)
	}
	return nil
}

// stripFence removes a markdown code fence some models wrap JSON output in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
