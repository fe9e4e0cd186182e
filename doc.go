/*
Package ragloop is a self-correcting retrieval augmented generation engine.

It answers questions either from a language model's general knowledge or from a
retrieved document corpus, choosing the path automatically. When the retrieved
documents are irrelevant it rewrites the question and retrieves again; when a
generation is not grounded in the documents it generates again. Both feedback
loops are bounded by the engine, so every run terminates.

# Concept

A run is a walk over a fixed graph of named nodes:

	START           --route_question-->     normal_llm | retrieve
	normal_llm      -------------------->   END
	retrieve        -------------------->   grade_documents
	grade_documents --decide_to_generate--> transform_query | generate
	transform_query -------------------->   retrieve
	generate        --grade_generation-->   generate | END

Nodes and decision points call external collaborators (a Retriever, Classifiers and
Generators) injected at construction. Each node returns a partial state update that
the engine merges before choosing the next node.

# Usage

	eng, err := ragloop.New(ports.Collaborators{
		Retriever:          retriever,
		Router:             router,
		RelevanceGrader:    relevance,
		GroundednessGrader: groundedness,
		GeneralAnswerer:    general,
		GroundedAnswerer:   grounded,
		QuestionRewriter:   rewriter,
	}, ragloop.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	// Stream progress
	for ev, err := range eng.Run(ctx, "Spec of model X200 lamp") {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(ev.Node, ev.Patch.Keys())
	}

	// Or wait for the answer
	ans, err := eng.RunToCompletion(ctx, "Spec of model X200 lamp")

# Bounded outcomes

The rewrite loop (grade_documents to transform_query) and the regenerate loop
(generate to itself) are each limited to three traversals by default. A run that
exceeds a bound ends with Outcome "bounded" and an explicit no-answer sentinel,
never with a stale answer presented as grounded. See FallbackPolicy.
*/
package ragloop
