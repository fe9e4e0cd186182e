/*
Package domain contains the core domain models of the ragloop engine.
It defines the record threaded through a run, the identifiers of the nodes and
decision points of the corrective retrieval graph, and the error taxonomy shared by
the engine and its collaborators. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - State: The working record of a run (Question, Generation, Documents, LoopCounters).
  - StatePatch: A partial update produced by a node; only present keys overwrite.
  - Document: A unit of retrieved context produced by a Retriever.
  - Event: One item of the run trace, emitted after each node visit.
  - LifecycleHooks: Callbacks for observability (metrics, logging, auditing).
*/
package domain
