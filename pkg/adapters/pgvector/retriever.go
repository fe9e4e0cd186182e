// Package pgvector provides a vector retriever backed by PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	DefaultTable       = "documents"
	DefaultTopK        = 2
	DefaultMaxDistance = 0.5
)

// Querier is the subset of pgxpool.Pool used by the retriever.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Retriever embeds the query and orders rows by cosine distance.
type Retriever struct {
	db          Querier
	embedder    ports.Embedder
	table       string
	topK        int
	maxDistance float64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTable sets the table holding content, source and embedding columns.
func WithTable(table string) Option {
	return func(r *Retriever) {
		r.table = table
	}
}

// WithTopK sets the row limit.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		r.topK = k
	}
}

// WithMaxDistance drops rows farther than d in cosine distance.
func WithMaxDistance(d float64) Option {
	return func(r *Retriever) {
		r.maxDistance = d
	}
}

// Connect opens a connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// New creates a retriever.
func New(db Querier, embedder ports.Embedder, opts ...Option) (*Retriever, error) {
	if db == nil || embedder == nil {
		return nil, errors.New("pgvector: database and embedder are required")
	}
	r := &Retriever{
		db:          db,
		embedder:    embedder,
		table:       DefaultTable,
		topK:        DefaultTopK,
		maxDistance: DefaultMaxDistance,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Retriever) query() string {
	return fmt.Sprintf(
		"SELECT content, source, embedding <=> $1 AS distance FROM %s WHERE embedding <=> $1 <= $2 ORDER BY distance LIMIT $3",
		pgx.Identifier{r.table}.Sanitize(),
	)
}

// Retrieve returns the closest rows to the query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := r.db.Query(ctx, r.query(), pgvector.NewVector(vector), r.maxDistance, r.topK)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var (
			doc      domain.Document
			distance float64
		)
		if err := rows.Scan(&doc.Content, &doc.Source, &distance); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		doc.Metadata = map[string]string{"distance": strconv.FormatFloat(distance, 'f', 4, 64)}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return docs, nil
}
