package runtime

import (
	"fmt"
	"slices"

	"github.com/aretw0/ragloop/internal/nodes"
	"github.com/aretw0/ragloop/internal/routers"
	"github.com/aretw0/ragloop/pkg/domain"
)

// Transition describes how control leaves a node.
// It is either fixed (To is set) or conditional (Router and Branches are set).
type Transition struct {
	To       domain.NodeID            `json:"to,omitempty"`
	Router   domain.RouterID          `json:"router,omitempty"`
	Branches map[string]domain.NodeID `json:"branches,omitempty"`
}

// IsConditional reports whether the transition is selected by a router.
func (t Transition) IsConditional() bool {
	return t.Router != ""
}

// LoopEdge is an edge whose traversals are counted and bounded by the engine.
// Label is empty for fixed edges.
type LoopEdge struct {
	ID    domain.LoopID `json:"id"`
	From  domain.NodeID `json:"from"`
	Label string        `json:"label,omitempty"`
	To    domain.NodeID `json:"to"`
}

// Graph is the topology of a run expressed as data.
// Transitions is keyed by source node and includes the virtual START node.
type Graph struct {
	Transitions map[domain.NodeID]Transition `json:"transitions"`
	Loops       []LoopEdge                   `json:"loops"`
}

// CorrectiveRAG returns the self-correcting retrieval graph.
func CorrectiveRAG() Graph {
	return Graph{
		Transitions: map[domain.NodeID]Transition{
			domain.NodeStart: {
				Router: domain.RouterRouteQuestion,
				Branches: map[string]domain.NodeID{
					domain.LabelNormalLLM:   domain.NodeNormalLLM,
					domain.LabelVectorstore: domain.NodeRetrieve,
				},
			},
			domain.NodeNormalLLM: {To: domain.NodeEnd},
			domain.NodeRetrieve:  {To: domain.NodeGradeDocuments},
			domain.NodeGradeDocuments: {
				Router: domain.RouterDecideToGenerate,
				Branches: map[string]domain.NodeID{
					domain.LabelTransformQuery: domain.NodeTransformQuery,
					domain.LabelGenerate:       domain.NodeGenerate,
				},
			},
			domain.NodeTransformQuery: {To: domain.NodeRetrieve},
			domain.NodeGenerate: {
				Router: domain.RouterGradeGeneration,
				Branches: map[string]domain.NodeID{
					domain.LabelNotSupported: domain.NodeGenerate,
					domain.LabelUseful:       domain.NodeEnd,
				},
			},
		},
		Loops: []LoopEdge{
			{ID: domain.LoopRewrite, From: domain.NodeGradeDocuments, Label: domain.LabelTransformQuery, To: domain.NodeTransformQuery},
			{ID: domain.LoopRegenerate, From: domain.NodeGenerate, Label: domain.LabelNotSupported, To: domain.NodeGenerate},
		},
	}
}

// Nodes returns every node of the graph in a stable order, START first and END last.
func (g Graph) Nodes() []domain.NodeID {
	seen := map[domain.NodeID]bool{domain.NodeStart: true, domain.NodeEnd: true}
	var inner []domain.NodeID
	add := func(id domain.NodeID) {
		if id != "" && !seen[id] {
			seen[id] = true
			inner = append(inner, id)
		}
	}
	for from, t := range g.Transitions {
		add(from)
		add(t.To)
		for _, to := range t.Branches {
			add(to)
		}
	}
	slices.Sort(inner)
	return append(append([]domain.NodeID{domain.NodeStart}, inner...), domain.NodeEnd)
}

// Loop returns the loop edge traversed when leaving from with label.
func (g Graph) Loop(from domain.NodeID, label string) (LoopEdge, bool) {
	for _, l := range g.Loops {
		if l.From == from && l.Label == label {
			return l, true
		}
	}
	return LoopEdge{}, false
}

// Validate checks that the topology is executable with the given steps and routers:
// every non-virtual node has a step, every router exists and its closed label set is
// covered exactly, every target is known, and every loop edge is a real edge.
func (g Graph) Validate(steps map[domain.NodeID]nodes.Step, rts map[domain.RouterID]routers.Router) error {
	if _, ok := g.Transitions[domain.NodeStart]; !ok {
		return &domain.ConfigurationError{Where: "graph", Reason: "missing transition out of START"}
	}
	if _, ok := g.Transitions[domain.NodeEnd]; ok {
		return &domain.ConfigurationError{Where: "graph", Reason: "END must not have outgoing transitions"}
	}

	known := func(id domain.NodeID) bool {
		if id == domain.NodeEnd {
			return true
		}
		_, hasStep := steps[id]
		return hasStep
	}

	for from, t := range g.Transitions {
		if from != domain.NodeStart && !known(from) {
			return &domain.ConfigurationError{Where: string(from), Reason: "node has no step function"}
		}
		if !t.IsConditional() {
			if !known(t.To) {
				return &domain.ConfigurationError{Where: string(from), Reason: fmt.Sprintf("unknown target %q", t.To)}
			}
			continue
		}
		r, ok := rts[t.Router]
		if !ok {
			return &domain.ConfigurationError{Where: string(from), Reason: fmt.Sprintf("unknown router %q", t.Router)}
		}
		if len(r.Labels) != len(t.Branches) {
			return &domain.ConfigurationError{
				Where:  string(t.Router),
				Reason: fmt.Sprintf("branches %d do not cover labels %v", len(t.Branches), []string(r.Labels)),
			}
		}
		for _, label := range r.Labels {
			to, ok := t.Branches[label]
			if !ok {
				return &domain.ConfigurationError{Where: string(t.Router), Reason: fmt.Sprintf("label %q has no branch", label)}
			}
			if !known(to) {
				return &domain.ConfigurationError{Where: string(t.Router), Reason: fmt.Sprintf("unknown target %q", to)}
			}
		}
	}

	for _, l := range g.Loops {
		t, ok := g.Transitions[l.From]
		switch {
		case !ok:
			ok = false
		case l.Label == "":
			ok = !t.IsConditional() && t.To == l.To
		default:
			ok = t.Branches[l.Label] == l.To
		}
		if !ok {
			return &domain.ConfigurationError{Where: string(l.ID), Reason: "loop edge is not part of the graph"}
		}
	}
	return nil
}
