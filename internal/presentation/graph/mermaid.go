package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/ragloop/internal/runtime"
	"github.com/aretw0/ragloop/pkg/domain"
)

// GraphOverlay contains dynamic run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []domain.NodeID
	CurrentNode  domain.NodeID
}

// OverlayFromTrace marks every node of a trace as visited and its last node as current.
func OverlayFromTrace(trace []domain.Event) *GraphOverlay {
	overlay := &GraphOverlay{}
	for _, ev := range trace {
		overlay.VisitedNodes = append(overlay.VisitedNodes, ev.Node)
		overlay.CurrentNode = ev.Node
	}
	return overlay
}

// GenerateMermaid produces a Mermaid flowchart of the graph.
// It applies semantic styling:
// - START and END: ((Circle))
// - Nodes with a conditional exit: {{Hexagon}}, the router name is shown on the node
// - Default: [Rectangle]
// Loop edges are dotted and annotated with their bound when bounds holds one.
func GenerateMermaid(g runtime.Graph, bounds map[domain.LoopID]int, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, id := range g.Nodes() {
		safeID := sanitizeMermaidID(id)
		t, hasExit := g.Transitions[id]

		opener, closer := "[", "]"
		label := string(id)
		switch {
		case id.IsVirtual():
			opener, closer = "((", "))"
		case hasExit && t.IsConditional():
			opener, closer = "{{", "}}"
		}
		if hasExit && t.IsConditional() {
			label = fmt.Sprintf("%s <br/> %s?", id, t.Router)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		if !hasExit {
			continue
		}
		if !t.IsConditional() {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(t.To))
			continue
		}

		labels := make([]string, 0, len(t.Branches))
		for l := range t.Branches {
			labels = append(labels, l)
		}
		slices.Sort(labels)

		for _, l := range labels {
			to := sanitizeMermaidID(t.Branches[l])
			safeLabel := strings.ReplaceAll(l, "\"", "'")
			if loop, ok := g.Loop(id, l); ok {
				if bound, ok := bounds[loop.ID]; ok {
					safeLabel = fmt.Sprintf("%s (%s ≤ %d)", safeLabel, loop.ID, bound)
				}
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", safeID, safeLabel, to)
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, safeLabel, to)
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

// sanitizeMermaidID maps node ids to Mermaid-safe identifiers.
// "end" is a reserved word in Mermaid flowcharts, so virtual nodes get a suffix.
func sanitizeMermaidID(id domain.NodeID) string {
	if id.IsVirtual() {
		return strings.ToLower(string(id)) + "_node"
	}
	s := strings.ReplaceAll(string(id), ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
