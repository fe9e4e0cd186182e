// Package memory provides an in-memory keyword retriever ranked with BM25.
package memory

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/aretw0/ragloop/pkg/domain"
)

const (
	DefaultTopK = 2

	bm25K1 = 1.5
	bm25B  = 0.75
)

// Retriever implements ports.Retriever over documents held in memory.
// Safe for concurrent use.
type Retriever struct {
	mu     sync.RWMutex
	docs   []domain.Document
	terms  []map[string]int
	lens   []int
	df     map[string]int
	avgLen float64
	topK   int
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK limits how many documents a query returns. Zero returns every match.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		r.topK = k
	}
}

// New indexes docs.
func New(docs []domain.Document, opts ...Option) *Retriever {
	r := &Retriever{
		df:   make(map[string]int),
		topK: DefaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Add(docs...)
	return r
}

// Add indexes more documents.
func (r *Retriever) Add(docs ...domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, l := range r.lens {
		total += l
	}
	for _, d := range docs {
		tokens := tokenize(d.Content)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			r.df[tok]++
		}
		r.docs = append(r.docs, d.Clone())
		r.terms = append(r.terms, tf)
		r.lens = append(r.lens, len(tokens))
		total += len(tokens)
	}
	if len(r.docs) > 0 {
		r.avgLen = float64(total) / float64(len(r.docs))
	}
}

// Len returns the number of indexed documents.
func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Retrieve returns the documents matching query, best first. Ties keep insertion order.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	type hit struct {
		idx   int
		score float64
	}
	var hits []hit
	qTerms := slices.Compact(sortedTokens(query))
	for i := range r.docs {
		if s := r.score(i, qTerms); s > 0 {
			hits = append(hits, hit{idx: i, score: s})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	if r.topK > 0 && len(hits) > r.topK {
		hits = hits[:r.topK]
	}

	out := make([]domain.Document, len(hits))
	for i, h := range hits {
		out[i] = r.docs[h.idx].Clone()
	}
	return out, nil
}

func (r *Retriever) score(i int, qTerms []string) float64 {
	n := float64(len(r.docs))
	dl := float64(r.lens[i])
	var s float64
	for _, t := range qTerms {
		f := float64(r.terms[i][t])
		if f == 0 {
			continue
		}
		df := float64(r.df[t])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		s += idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*dl/r.avgLen))
	}
	return s
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sortedTokens(s string) []string {
	t := tokenize(s)
	slices.Sort(t)
	return t
}
