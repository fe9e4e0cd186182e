// Package ensemble fuses the rankings of several retrievers with weighted
// reciprocal rank fusion.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// DefaultRankConstant dampens the contribution of lower ranks.
const DefaultRankConstant = 60

// Member is one weighted retriever of the ensemble.
type Member struct {
	Name      string
	Retriever ports.Retriever
	Weight    float64
}

// Retriever queries every member concurrently and merges their rankings.
// Documents with identical content are merged into one entry.
type Retriever struct {
	members []Member
	c       float64
	topK    int
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithRankConstant overrides the fusion constant.
func WithRankConstant(c float64) Option {
	return func(r *Retriever) {
		r.c = c
	}
}

// WithTopK limits the fused result. Zero keeps every document.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		r.topK = k
	}
}

// New creates an ensemble. At least one member with a positive weight is required.
func New(members []Member, opts ...Option) (*Retriever, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble: no members")
	}
	var total float64
	for i, m := range members {
		if m.Retriever == nil {
			return nil, fmt.Errorf("ensemble: member %d has no retriever", i)
		}
		if m.Weight < 0 {
			return nil, fmt.Errorf("ensemble: member %q has a negative weight", m.Name)
		}
		total += m.Weight
	}
	if total == 0 {
		return nil, errors.New("ensemble: every member weight is zero")
	}
	r := &Retriever{members: slices.Clone(members), c: DefaultRankConstant}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve fans the query out to every member and fuses the results, best first.
// Any member failure fails the whole retrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	results := make([][]domain.Document, len(r.members))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range r.members {
		g.Go(func() error {
			docs, err := m.Retriever.Retrieve(gctx, query)
			if err != nil {
				return fmt.Errorf("ensemble member %q: %w", m.Name, err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r.fuse(results), nil
}

type fused struct {
	doc   domain.Document
	score float64
	first int
}

func (r *Retriever) fuse(results [][]domain.Document) []domain.Document {
	index := make(map[string]*fused)
	var order []*fused
	seq := 0
	for i, docs := range results {
		w := r.members[i].Weight
		for rank, d := range docs {
			f, ok := index[d.Content]
			if !ok {
				f = &fused{doc: d.Clone(), first: seq}
				index[d.Content] = f
				order = append(order, f)
			}
			f.score += w / (float64(rank+1) + r.c)
			seq++
		}
	}

	slices.SortStableFunc(order, func(a, b *fused) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.first - b.first
	})
	if r.topK > 0 && len(order) > r.topK {
		order = order[:r.topK]
	}

	out := make([]domain.Document, len(order))
	for i, f := range order {
		out[i] = f.doc
	}
	return out
}
