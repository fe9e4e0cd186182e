package openai

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/ragloop/pkg/ports"
)

// Prompts maps each prompt kind to a text/template rendered with the call variables.
type Prompts map[ports.PromptKind]string

// DefaultPrompts returns the prompt set used when none is configured.
func DefaultPrompts() Prompts {
	return Prompts{
		ports.PromptRouteQuestion: `You route user questions either to a document vectorstore or to a general language model call.
Choose "vectorstore" when the question needs specific, detailed or factual information such as product specifications, technical data or niche knowledge.
Choose "normal_llm" when general knowledge or reasoning is enough.
Reply with a JSON object holding a single key "datasource" whose value is "normal_llm" or "vectorstore".

Question: '''{{.question}}'''`,

		ports.PromptGradeDocument: `You grade whether a retrieved document is relevant to a user question.
The test is lenient: keywords or product codes related to the question make the document relevant. The goal is to filter out wrong retrievals.

Document:
------------
{{.document}}
------------
Question: '''{{.question}}'''

Reply with a JSON object holding a single key "score" whose value is "yes" or "no".`,

		ports.PromptGradeGeneration: `You grade whether an answer is grounded in and supported by the facts of the documents below.

Documents:
----------
{{.documents}}
----------
Answer: '''{{.generation}}'''

Reply with a JSON object holding a single key "score" whose value is "yes" or "no".`,

		ports.PromptGradeAnswer: `You grade whether an answer is useful to resolve a question.

Answer:
-------
{{.generation}}
-------
Question: '''{{.question}}'''

Reply with a JSON object holding a single key "score" whose value is "yes" or "no".`,

		ports.PromptAnswerGeneral: `You answer customer questions from your own knowledge. Be polite and helpful.
If you do not know the answer, say what exactly you would need to know to help.

Question: '''{{.question}}'''`,

		ports.PromptAnswerGrounded: `You answer questions using only the retrieved context below. If the context does not contain the answer, say that you don't know.
Use three sentences at most and keep the answer concise.

Question: '''{{.question}}'''

Context:
------------
{{.context}}
------------
Answer:`,

		ports.PromptRewriteQuestion: `You rewrite a question into a better version optimised for vectorstore retrieval.
Reply with the improved question only.

Question: '''{{.question}}'''
Improved question:`,
	}
}

type promptSet map[ports.PromptKind]*template.Template

func compilePrompts(p Prompts) (promptSet, error) {
	set := make(promptSet, len(p))
	for kind, text := range p {
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt %q: %w", kind, err)
		}
		set[kind] = tmpl
	}
	return set, nil
}

func (s promptSet) render(kind ports.PromptKind, vars map[string]string) (string, error) {
	tmpl, ok := s[kind]
	if !ok {
		return "", fmt.Errorf("no prompt for kind %q", kind)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", kind, err)
	}
	return b.String(), nil
}
