/*
Package ports defines the driven ports (interfaces) for the ragloop engine.

These interfaces decouple the graph execution core from the collaborators it consumes,
allowing the engine to work with any retriever, language model backend, or trace sink.
Collaborators are injected at construction time; implementations must support concurrent
read-only invocation because independent runs may share them.

# Key Interfaces

  - Retriever: Returns documents for a query, best first. May return none.
  - Classifier: Returns a structured decision with a single discriminant field.
  - Generator: Returns free text from a set of prompt variables.
  - Embedder: Turns text into a vector for vector-store retrievers.
  - TraceSink: Receives every run trace event (e.g. a Redis stream).
*/
package ports
