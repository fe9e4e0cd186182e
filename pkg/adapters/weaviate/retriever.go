// Package weaviate provides a vector retriever backed by a Weaviate class.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	DefaultClass        = "Document"
	DefaultTopK         = 2
	DefaultMinCertainty = 0.5
)

// Retriever embeds the query and runs a nearVector search. It holds no per-run
// state and is safe for concurrent use.
type Retriever struct {
	client       *wv.Client
	embedder     ports.Embedder
	class        string
	topK         int
	minCertainty float32
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithClass sets the Weaviate class holding the documents.
func WithClass(class string) Option {
	return func(r *Retriever) {
		r.class = class
	}
}

// WithTopK sets the search limit.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		r.topK = k
	}
}

// WithMinCertainty drops matches below the given certainty (0 to 1).
func WithMinCertainty(c float32) Option {
	return func(r *Retriever) {
		r.minCertainty = c
	}
}

// NewClient connects to a Weaviate instance.
func NewClient(host, scheme string) (*wv.Client, error) {
	if scheme == "" {
		scheme = "http"
	}
	client, err := wv.NewClient(wv.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// New creates a retriever.
func New(client *wv.Client, embedder ports.Embedder, opts ...Option) (*Retriever, error) {
	if client == nil || embedder == nil {
		return nil, errors.New("weaviate: client and embedder are required")
	}
	r := &Retriever{
		client:       client,
		embedder:     embedder,
		class:        DefaultClass,
		topK:         DefaultTopK,
		minCertainty: DefaultMinCertainty,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve returns the nearest documents to the query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(r.minCertainty)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(r.topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	return parseResults(result, r.class)
}

// parseResults extracts documents from a Get response, keeping the server's order.
func parseResults(result *models.GraphQLResponse, class string) ([]domain.Document, error) {
	if result == nil {
		return nil, errors.New("weaviate: empty response")
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", result.Errors[0].Message)
	}

	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []domain.Document{}, nil
	}
	objects, ok := get[class].([]interface{})
	if !ok {
		return []domain.Document{}, nil
	}

	docs := make([]domain.Document, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		if content == "" {
			continue
		}
		source, _ := m["source"].(string)
		doc := domain.Document{Content: content, Source: source}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				doc.Metadata = map[string]string{
					"certainty": strconv.FormatFloat(certainty, 'f', 4, 64),
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
