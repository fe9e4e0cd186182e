package domain

// NodeID identifies a node of the graph.
type NodeID string

// Node identifiers of the corrective retrieval graph.
const (
	// NodeStart is the virtual entry node. It has no step function.
	NodeStart NodeID = "START"
	// NodeNormalLLM answers from general knowledge and never retrieves.
	NodeNormalLLM NodeID = "normal_llm"
	// NodeRetrieve fetches documents for the current question.
	NodeRetrieve NodeID = "retrieve"
	// NodeGradeDocuments keeps only documents judged relevant.
	NodeGradeDocuments NodeID = "grade_documents"
	// NodeGenerate answers from the filtered documents.
	NodeGenerate NodeID = "generate"
	// NodeTransformQuery rewrites the question for better retrieval.
	NodeTransformQuery NodeID = "transform_query"
	// NodeEnd is the virtual terminal node.
	NodeEnd NodeID = "END"
)

// IsVirtual reports whether the node has no step function (START and END).
func (id NodeID) IsVirtual() bool {
	return id == NodeStart || id == NodeEnd
}

// RouterID identifies a decision point.
type RouterID string

// Decision points of the corrective retrieval graph.
const (
	RouterRouteQuestion    RouterID = "route_question"
	RouterDecideToGenerate RouterID = "decide_to_generate"
	RouterGradeGeneration  RouterID = "grade_generation"
)

// LoopID identifies a loop edge whose traversals are bounded by the engine.
type LoopID string

const (
	// LoopRewrite is the edge grade_documents -[transform_query]-> transform_query,
	// which closes the transform_query -> retrieve -> grade_documents cycle.
	LoopRewrite LoopID = "rewrite"
	// LoopRegenerate is the self edge generate -[not_supported]-> generate.
	LoopRegenerate LoopID = "regenerate"
)
