package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcanvas/internal/graph"
)

// kindTag returns a short marker for a node kind.
func kindTag(n *Node) string {
	switch n.Kind {
	case graph.KindStart:
		return "(start)"
	case graph.KindEnd:
		return "(end)"
	case graph.KindDecision:
		return "<?>"
	case graph.KindApproval:
		return "[approve]"
	case graph.KindNotification:
		return "[notify]"
	case graph.KindStaffSubmission:
		return "[submit]"
	default:
		return ""
	}
}

// RenderASCII renders a Model as text using a level-based layout with
// box-drawing characters, followed by the edge list.
func RenderASCII(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, level := range model.Levels {
		var boxes []asciiBox
		for _, id := range level {
			if n := model.node(id); n != nil {
				boxes = append(boxes, makeBox(n))
			}
		}
		renderBoxRow(&b, boxes)
		if i < len(model.Levels)-1 && len(boxes) > 0 {
			b.WriteString("       │\n")
			b.WriteString("       ▼\n")
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\n")
		for _, e := range model.Edges {
			from, to := e.From, e.To
			if n := model.node(from); n != nil {
				from = firstLine(n.Label)
			}
			if n := model.node(to); n != nil {
				to = firstLine(n.Label)
			}
			if e.Label != "" {
				fmt.Fprintf(&b, "  %s ─[%s]→ %s\n", from, e.Label, to)
			} else {
				fmt.Fprintf(&b, "  %s ─→ %s\n", from, to)
			}
		}
	}

	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

func makeBox(n *Node) asciiBox {
	content := []string{firstLine(n.Label)}
	if tag := kindTag(n); tag != "" {
		content = append(content, tag)
	}
	if n.Role != "" {
		content = append(content, "@"+n.Role)
	}
	if n.Selected {
		content[0] = "* " + content[0]
	}

	maxLen := 0
	for _, line := range content {
		if l := len([]rune(line)); l > maxLen {
			maxLen = l
		}
	}
	width := maxLen + 4

	lines := make([]string, 0, len(content)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, c := range content {
		pad := maxLen - len([]rune(c))
		lines = append(lines, "│ "+c+strings.Repeat(" ", pad)+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")
	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}
	height := 0
	for _, box := range boxes {
		if len(box.lines) > height {
			height = len(box.lines)
		}
	}
	for row := 0; row < height; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}
