package ports

import (
	"context"

	"github.com/aretw0/ragloop/pkg/domain"
)

// PromptKind selects the prompt a language model collaborator should use.
type PromptKind string

const (
	PromptRouteQuestion   PromptKind = "route_question"
	PromptGradeDocument   PromptKind = "grade_document"
	PromptGradeGeneration PromptKind = "grade_generation"
	PromptGradeAnswer     PromptKind = "grade_answer"
	PromptAnswerGeneral   PromptKind = "answer_general"
	PromptAnswerGrounded  PromptKind = "answer_grounded"
	PromptRewriteQuestion PromptKind = "rewrite_question"
)

// Prompt variable names shared by nodes, routers and adapters.
const (
	VarQuestion   = "question"
	VarDocument   = "document"
	VarDocuments  = "documents"
	VarContext    = "context"
	VarGeneration = "generation"
)

// Decision is the raw structured output of a classifier.
// A well-formed decision carries exactly one discriminant field.
type Decision map[string]any

// Retriever returns documents for a query ordered best first.
// It gives no relevance guarantee and may return an empty sequence.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Document, error)
}

// Classifier produces a structured decision for a prompt kind.
type Classifier interface {
	Classify(ctx context.Context, kind PromptKind, vars map[string]string) (Decision, error)
}

// Generator produces free text from prompt variables.
type Generator interface {
	Generate(ctx context.Context, vars map[string]string) (string, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string) ([]domain.Document, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string) ([]domain.Document, error) {
	return f(ctx, query)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, kind PromptKind, vars map[string]string) (Decision, error)

func (f ClassifierFunc) Classify(ctx context.Context, kind PromptKind, vars map[string]string) (Decision, error) {
	return f(ctx, kind, vars)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, vars map[string]string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, vars map[string]string) (string, error) {
	return f(ctx, vars)
}

// Collaborators bundles every external component consumed by the graph.
type Collaborators struct {
	Retriever Retriever

	Router             Classifier
	RelevanceGrader    Classifier
	GroundednessGrader Classifier
	// UsefulnessGrader is optional. When set, grounded answers must also be judged useful.
	UsefulnessGrader Classifier

	GeneralAnswerer  Generator
	GroundedAnswerer Generator
	QuestionRewriter Generator
}

// Missing lists the names of required collaborators that are nil.
func (c Collaborators) Missing() []string {
	var missing []string
	check := func(name string, isNil bool) {
		if isNil {
			missing = append(missing, name)
		}
	}
	check("Retriever", c.Retriever == nil)
	check("Router", c.Router == nil)
	check("RelevanceGrader", c.RelevanceGrader == nil)
	check("GroundednessGrader", c.GroundednessGrader == nil)
	check("GeneralAnswerer", c.GeneralAnswerer == nil)
	check("GroundedAnswerer", c.GroundedAnswerer == nil)
	check("QuestionRewriter", c.QuestionRewriter == nil)
	return missing
}
