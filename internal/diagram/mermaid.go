package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcanvas/internal/graph"
)

// RenderMermaid renders a Model as a Mermaid flowchart string.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph LR\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}
	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef start fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef finish fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef approval fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef notification fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef selected stroke:#f5b400,stroke-width:3px\n")

	for _, node := range model.Nodes {
		if cls := mermaidKindClass(node.Kind); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
		if node.Selected {
			fmt.Fprintf(&b, "    class %s selected\n", mermaidSafeID(node.ID))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape for its
// kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Kind {
	case graph.KindStart, graph.KindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	case graph.KindDecision:
		return fmt.Sprintf("%s{%q}", id, label)
	case graph.KindApproval:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case graph.KindNotification:
		return fmt.Sprintf("%s>%q]", id, label)
	case graph.KindStaffSubmission:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return "n_" + r.Replace(id)
}

// mermaidEscapeLabel drops characters that terminate a Mermaid label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "'", "|", "/")
	return r.Replace(s)
}

func mermaidKindClass(k graph.Kind) string {
	switch k {
	case graph.KindStart:
		return "start"
	case graph.KindEnd:
		return "finish"
	case graph.KindApproval:
		return "approval"
	case graph.KindNotification:
		return "notification"
	default:
		return ""
	}
}
