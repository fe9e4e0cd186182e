package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
)

// Retriever is a scripted retriever. Each call returns the next entry of Results;
// the last entry repeats once the script is exhausted.
type Retriever struct {
	Results [][]domain.Document
	Err     error

	mu    sync.Mutex
	calls []string
}

// NewRetriever creates a retriever returning results in order.
func NewRetriever(results ...[]domain.Document) *Retriever {
	return &Retriever{Results: results}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, query)
	if r.Err != nil {
		return nil, r.Err
	}
	if len(r.Results) == 0 {
		return nil, nil
	}
	idx := min(len(r.calls)-1, len(r.Results)-1)
	out := make([]domain.Document, len(r.Results[idx]))
	copy(out, r.Results[idx])
	return out, nil
}

// Calls returns the queries received so far.
func (r *Retriever) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// ClassifierCall records one classifier invocation.
type ClassifierCall struct {
	Kind ports.PromptKind
	Vars map[string]string
}

// Classifier is a scripted classifier driven by Decide.
type Classifier struct {
	Decide func(kind ports.PromptKind, vars map[string]string) (ports.Decision, error)

	mu    sync.Mutex
	calls []ClassifierCall
}

func (c *Classifier) Classify(ctx context.Context, kind ports.PromptKind, vars map[string]string) (ports.Decision, error) {
	c.mu.Lock()
	c.calls = append(c.calls, ClassifierCall{Kind: kind, Vars: vars})
	c.mu.Unlock()
	if c.Decide == nil {
		return nil, fmt.Errorf("classifier stub has no script")
	}
	return c.Decide(kind, vars)
}

// Calls returns the invocations received so far.
func (c *Classifier) Calls() []ClassifierCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ClassifierCall(nil), c.calls...)
}

// FixedDecision returns a classifier that always answers {field: value}.
func FixedDecision(field, value string) *Classifier {
	return &Classifier{Decide: func(ports.PromptKind, map[string]string) (ports.Decision, error) {
		return ports.Decision{field: value}, nil
	}}
}

// AlwaysYes returns a grader that accepts everything.
// Test-only: it mirrors a constant-valued grader and disables self-correction.
func AlwaysYes() *Classifier {
	return FixedDecision("score", domain.ScoreYes)
}

// SequenceDecisions returns a classifier answering {field: values[i]} on call i.
// The last value repeats once the sequence is exhausted.
func SequenceDecisions(field string, values ...string) *Classifier {
	var mu sync.Mutex
	n := 0
	return &Classifier{Decide: func(ports.PromptKind, map[string]string) (ports.Decision, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[min(n, len(values)-1)]
		n++
		return ports.Decision{field: v}, nil
	}}
}

// RelevantSources returns a relevance grader answering yes only for document
// contents listed in relevant.
func RelevantSources(relevant ...domain.Document) *Classifier {
	set := make(map[string]bool, len(relevant))
	for _, d := range relevant {
		set[d.Content] = true
	}
	return &Classifier{Decide: func(_ ports.PromptKind, vars map[string]string) (ports.Decision, error) {
		if set[vars[ports.VarDocument]] {
			return ports.Decision{"score": domain.ScoreYes}, nil
		}
		return ports.Decision{"score": domain.ScoreNo}, nil
	}}
}

// Generator is a scripted generator. Each call returns the next response;
// the last response repeats once the script is exhausted.
type Generator struct {
	Responses []string
	Err       error

	mu    sync.Mutex
	calls []map[string]string
}

// NewGenerator creates a generator returning responses in order.
func NewGenerator(responses ...string) *Generator {
	return &Generator{Responses: responses}
}

func (g *Generator) Generate(ctx context.Context, vars map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, vars)
	if g.Err != nil {
		return "", g.Err
	}
	if len(g.Responses) == 0 {
		return "", nil
	}
	return g.Responses[min(len(g.calls)-1, len(g.Responses)-1)], nil
}

// Calls returns the variables received so far.
func (g *Generator) Calls() []map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]string(nil), g.calls...)
}

// Rig bundles scripted collaborators so that tests can inspect calls afterwards.
type Rig struct {
	Retriever          *Retriever
	Router             *Classifier
	RelevanceGrader    *Classifier
	GroundednessGrader *Classifier
	UsefulnessGrader   *Classifier
	GeneralAnswerer    *Generator
	GroundedAnswerer   *Generator
	QuestionRewriter   *Generator
}

// NewRig returns a rig routing to the vectorstore, retrieving the two X200 documents,
// accepting every document and every generation.
func NewRig() *Rig {
	return &Rig{
		Retriever:          NewRetriever([]domain.Document{DocX200Spec, DocX200Warranty}),
		Router:             FixedDecision("datasource", domain.LabelVectorstore),
		RelevanceGrader:    AlwaysYes(),
		GroundednessGrader: AlwaysYes(),
		GeneralAnswerer:    NewGenerator("Paris is the capital of France."),
		GroundedAnswerer:   NewGenerator("The X200 draws 12 W."),
		QuestionRewriter:   NewGenerator("X200 lamp technical specification"),
	}
}

// Collaborators converts the rig into the port bundle consumed by the engine.
func (r *Rig) Collaborators() ports.Collaborators {
	c := ports.Collaborators{
		Retriever:          r.Retriever,
		Router:             r.Router,
		RelevanceGrader:    r.RelevanceGrader,
		GroundednessGrader: r.GroundednessGrader,
		GeneralAnswerer:    r.GeneralAnswerer,
		GroundedAnswerer:   r.GroundedAnswerer,
		QuestionRewriter:   r.QuestionRewriter,
	}
	if r.UsefulnessGrader != nil {
		c.UsefulnessGrader = r.UsefulnessGrader
	}
	return c
}
