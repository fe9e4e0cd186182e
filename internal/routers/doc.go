// Package routers implements the decision points of the corrective RAG graph.
//
// Each decision point returns one label from a closed set. Classifier output is
// decoded strictly: a malformed decision is a node execution failure, while a
// well-formed decision carrying an unknown label is a configuration error.
package routers
