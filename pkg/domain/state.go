package domain

import "maps"

// State represents the working record of a single run.
// A State is owned by exactly one run and is never shared between runs.
type State struct {
	// Question is set at run start and only replaced by the rewrite step.
	Question string `json:"question"`

	// Generation stays empty until a generation step runs.
	Generation string `json:"generation,omitempty"`

	// Documents is replaced wholesale by retrieval, grading and rewriting steps.
	Documents []Document `json:"documents,omitempty"`

	// LoopCounters tracks traversals per loop edge. Owned by the engine, never by nodes.
	LoopCounters map[LoopID]int `json:"loop_counters,omitempty"`
}

// NewState creates the initial state of a run, holding only the question.
func NewState(question string) State {
	return State{
		Question:     question,
		LoopCounters: make(map[LoopID]int),
	}
}

// Snapshot returns a deep copy of the state so that a node cannot alias engine-owned data.
func (s State) Snapshot() State {
	next := s
	if s.Documents != nil {
		next.Documents = make([]Document, len(s.Documents))
		for i, d := range s.Documents {
			next.Documents[i] = d.Clone()
		}
	}
	next.LoopCounters = maps.Clone(s.LoopCounters)
	if next.LoopCounters == nil {
		next.LoopCounters = make(map[LoopID]int)
	}
	return next
}

// StatePatch is the partial update returned by a node.
// A nil field means the key is absent and the current value is preserved.
type StatePatch struct {
	Question   *string     `json:"question,omitempty"`
	Generation *string     `json:"generation,omitempty"`
	Documents  *[]Document `json:"documents,omitempty"`
}

// PatchQuestion returns a patch replacing the question.
func PatchQuestion(q string) StatePatch {
	return StatePatch{Question: &q}
}

// PatchGeneration returns a patch replacing the generation.
func PatchGeneration(g string) StatePatch {
	return StatePatch{Generation: &g}
}

// PatchDocuments returns a patch replacing the full document sequence.
// A nil slice is normalised to an empty one so the key stays present.
func PatchDocuments(docs []Document) StatePatch {
	if docs == nil {
		docs = []Document{}
	}
	return StatePatch{Documents: &docs}
}

// With combines two patches. Keys present in other win.
func (p StatePatch) With(other StatePatch) StatePatch {
	if other.Question != nil {
		p.Question = other.Question
	}
	if other.Generation != nil {
		p.Generation = other.Generation
	}
	if other.Documents != nil {
		p.Documents = other.Documents
	}
	return p
}

// Keys lists the keys present in the patch, in a stable order.
func (p StatePatch) Keys() []string {
	keys := make([]string, 0, 3)
	if p.Question != nil {
		keys = append(keys, "question")
	}
	if p.Generation != nil {
		keys = append(keys, "generation")
	}
	if p.Documents != nil {
		keys = append(keys, "documents")
	}
	return keys
}

// IsEmpty checks if the patch touches no key.
func (p StatePatch) IsEmpty() bool {
	return p.Question == nil && p.Generation == nil && p.Documents == nil
}

// Merge applies patch on top of current and returns the new state.
// Only keys present in the patch are overwritten. Documents are never deep merged:
// a present Documents key replaces the whole sequence.
func Merge(current State, patch StatePatch) State {
	next := current.Snapshot()
	if patch.Question != nil {
		next.Question = *patch.Question
	}
	if patch.Generation != nil {
		next.Generation = *patch.Generation
	}
	if patch.Documents != nil {
		docs := make([]Document, len(*patch.Documents))
		copy(docs, *patch.Documents)
		next.Documents = docs
	}
	return next
}
