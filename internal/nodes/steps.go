package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/ragloop/internal/routers"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// NormalLLM answers from general knowledge. It never touches the retriever.
func (r *Registry) NormalLLM(ctx context.Context, state domain.State) (domain.StatePatch, error) {
	answer, err := call(ctx, r.timeout, domain.NodeNormalLLM, func(ctx context.Context) (string, error) {
		return r.collab.GeneralAnswerer.Generate(ctx, map[string]string{
			ports.VarQuestion: state.Question,
		})
	})
	if err != nil {
		return domain.StatePatch{}, err
	}
	if err := nonEmpty(domain.NodeNormalLLM, "answerer returned an empty answer", answer); err != nil {
		return domain.StatePatch{}, err
	}
	r.logger.Debug("general answer generated", "node", domain.NodeNormalLLM, "preview", r.preview(answer))
	return domain.PatchGeneration(answer), nil
}

// Retrieve fetches documents for the current question. An empty result is not an error.
func (r *Registry) Retrieve(ctx context.Context, state domain.State) (domain.StatePatch, error) {
	docs, err := call(ctx, r.timeout, domain.NodeRetrieve, func(ctx context.Context) ([]domain.Document, error) {
		return r.collab.Retriever.Retrieve(ctx, state.Question)
	})
	if err != nil {
		return domain.StatePatch{}, err
	}
	r.logger.Debug("documents retrieved", "node", domain.NodeRetrieve, "count", len(docs))
	return domain.PatchDocuments(docs), nil
}

// GradeDocuments keeps the documents the relevance grader judges relevant to the question.
// Documents are graded concurrently; the retriever's order is preserved.
func (r *Registry) GradeDocuments(ctx context.Context, state domain.State) (domain.StatePatch, error) {
	verdicts := make([]bool, len(state.Documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, doc := range state.Documents {
		g.Go(func() error {
			raw, err := call(gctx, r.timeout, domain.NodeGradeDocuments, func(ctx context.Context) (ports.Decision, error) {
				return r.collab.RelevanceGrader.Classify(ctx, ports.PromptGradeDocument, map[string]string{
					ports.VarQuestion: state.Question,
					ports.VarDocument: doc.Content,
				})
			})
			if err != nil {
				return err
			}
			relevant, err := routers.DecodeScore(string(domain.NodeGradeDocuments), raw)
			if err != nil {
				if errors.Is(err, domain.ErrConfiguration) {
					return err
				}
				return &domain.NodeExecutionError{
					Node:  string(domain.NodeGradeDocuments),
					Cause: fmt.Errorf("document %d (source: %s): %w", i+1, doc.Source, err),
				}
			}
			verdicts[i] = relevant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return domain.StatePatch{}, &domain.CancelledError{Node: domain.NodeGradeDocuments, Cause: ctx.Err()}
		}
		return domain.StatePatch{}, err
	}

	filtered := make([]domain.Document, 0, len(state.Documents))
	for i, doc := range state.Documents {
		if verdicts[i] {
			filtered = append(filtered, doc)
		}
	}
	r.logger.Debug("documents graded", "node", domain.NodeGradeDocuments,
		"relevant", len(filtered), "total", len(state.Documents))
	return domain.PatchDocuments(filtered), nil
}

// Generate answers the question from the graded documents.
func (r *Registry) Generate(ctx context.Context, state domain.State) (domain.StatePatch, error) {
	answer, err := call(ctx, r.timeout, domain.NodeGenerate, func(ctx context.Context) (string, error) {
		return r.collab.GroundedAnswerer.Generate(ctx, map[string]string{
			ports.VarQuestion: state.Question,
			ports.VarContext:  domain.FormatDocuments(state.Documents),
		})
	})
	if err != nil {
		return domain.StatePatch{}, err
	}
	if err := nonEmpty(domain.NodeGenerate, "answerer returned an empty answer", answer); err != nil {
		return domain.StatePatch{}, err
	}
	r.logger.Debug("grounded answer generated", "node", domain.NodeGenerate, "preview", r.preview(answer))
	return domain.PatchGeneration(answer), nil
}

// TransformQuery rewrites the question for better retrieval. Documents are left untouched.
func (r *Registry) TransformQuery(ctx context.Context, state domain.State) (domain.StatePatch, error) {
	rewritten, err := call(ctx, r.timeout, domain.NodeTransformQuery, func(ctx context.Context) (string, error) {
		return r.collab.QuestionRewriter.Generate(ctx, map[string]string{
			ports.VarQuestion: state.Question,
		})
	})
	if err != nil {
		return domain.StatePatch{}, err
	}
	if err := nonEmpty(domain.NodeTransformQuery, "rewriter returned an empty question", rewritten); err != nil {
		return domain.StatePatch{}, err
	}
	r.logger.Debug("question rewritten", "node", domain.NodeTransformQuery, "preview", r.preview(rewritten))
	return domain.PatchQuestion(rewritten), nil
}

// nonEmpty rejects blank generator output, which can never be a usable answer or question.
func nonEmpty(node domain.NodeID, reason, out string) error {
	if strings.TrimSpace(out) != "" {
		return nil
	}
	return &domain.NodeExecutionError{Node: string(node), Cause: errors.New(reason)}
}
