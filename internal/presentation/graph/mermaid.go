package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/lattice/pkg/domain"
)

// Overlay contains run data to visualize on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromEvents builds an overlay from the NodeEntered events of a root run.
func OverlayFromEvents(g *domain.Graph, events []domain.Event) *Overlay {
	o := &Overlay{}
	for _, e := range events {
		entered, ok := e.(*domain.NodeEntered)
		if !ok || entered.Nested || entered.Graph != g.Name() {
			continue
		}
		o.VisitedNodes = append(o.VisitedNodes, entered.NodeID)
		o.CurrentNode = entered.NodeID
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of g.
// Node shapes follow the node kind:
//
//	start     ((circle))
//	terminal  (((double circle)))
//	llm_call  ([stadium])
//	tool_call [[subroutine]]
//	transform [/parallelogram/]
//	subgraph  [rectangle] with the nested graph name
//
// Edge labels are the guard labels. Overlay styles are applied when overlay is not nil.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes() {
		safeID := sanitizeMermaidID(node.ID)
		opener, closer := "[", "]"
		label := node.ID

		switch node.Kind {
		case domain.KindStart:
			opener, closer = "((", "))"
		case domain.KindTerminal:
			opener, closer = "(((", ")))"
		case domain.KindLLMCall:
			opener, closer = "([", "])"
			if node.LLM != nil && node.LLM.Model != "" {
				label = fmt.Sprintf("%s <br/> %s", node.ID, node.LLM.Model)
			}
		case domain.KindToolCall:
			opener, closer = "[[", "]]"
		case domain.KindTransform:
			opener, closer = "[/", "/]"
		case domain.KindSubGraph:
			if node.SubGraph != nil && node.SubGraph.Graph != nil {
				label = fmt.Sprintf("%s <br/> ↳ %s", node.ID, node.SubGraph.Graph.Name())
			}
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)
	}

	for _, e := range g.Edges() {
		arrow := "-->"
		if e.Label != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escape(e.Label))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the overlay readable on light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			if _, ok := g.Node(id); !ok {
				continue
			}
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if _, ok := g.Node(overlay.CurrentNode); ok {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
