// Package diagram renders workflow graphs outside the interactive canvas:
// Mermaid text, graphviz DOT/PNG, a box-drawing text view and a PNG drawn
// at the nodes' stored logical positions.
package diagram

import (
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
	// Levels groups node ids by breadth-first distance from the start
	// nodes. Nodes that cannot be reached form the last level.
	Levels [][]string
}

// Node is one workflow step.
type Node struct {
	ID       string
	Label    string
	Kind     graph.Kind
	Role     string
	Outputs  []string
	Position geometry.Point
	Size     geometry.Size
	Selected bool
}

// Edge is a resolved connection. Label carries the condition.
type Edge struct {
	From     string
	To       string
	Label    string
	Selected bool
}

const (
	minNodeWidth = 160
	charWidth    = 8
	headerHeight = 48
	outputHeight = 20
)

// DefaultSize estimates a node's rendered size from its label and outputs.
// It is the sizer used when the host does not supply one.
func DefaultSize(n *graph.Node) geometry.Size {
	w := float64(len(n.Label)*charWidth + 32)
	if w < minNodeWidth {
		w = minNodeWidth
	}
	return geometry.Size{Width: w, Height: float64(headerHeight + outputHeight*len(n.Outputs))}
}

// FromModel snapshots an editor model. Node ids are runtime ids; connections
// whose endpoints did not resolve are left out.
func FromModel(m *graph.Model, size graph.SizeFunc) *Model {
	if size == nil {
		size = DefaultSize
	}
	out := &Model{}
	selConn, _ := m.SelectedConnection()

	m.EachNode(func(n *graph.Node) bool {
		d := &Node{
			ID:       n.ID,
			Label:    n.Label,
			Kind:     n.Kind,
			Role:     n.Role,
			Size:     size(n),
			Selected: n.ID == m.SelectedNodeID(),
		}
		if d.Label == "" {
			d.Label = n.ExternalID
		}
		if n.Position != nil {
			d.Position = *n.Position
		}
		for _, p := range n.Outputs {
			d.Outputs = append(d.Outputs, p.Label)
		}
		out.Nodes = append(out.Nodes, d)
		return true
	})

	for _, c := range m.Connections() {
		if c.SourceNodeID == "" || c.TargetNodeID == "" {
			continue
		}
		e := Edge{From: c.SourceNodeID, To: c.TargetNodeID}
		if c.Condition != nil {
			e.Label = *c.Condition
		}
		e.Selected = selConn != nil && selConn.ID == c.ID
		out.Edges = append(out.Edges, e)
	}

	out.Levels = levels(out)
	return out
}

// FromDefinition builds a diagram straight from a wire document. Nodes are
// keyed by node_id, falling back to id when node_id is empty.
func FromDefinition(def *schema.WorkflowDefinition) *Model {
	out := &Model{Title: def.WorkflowName}
	if out.Title == "" {
		out.Title = def.WorkflowType
	}

	known := make(map[string]bool, len(def.Nodes))
	for _, wn := range def.Nodes {
		key := wn.NodeID
		if key == "" {
			key = wn.ID
		}
		if key == "" || known[key] {
			continue
		}
		known[key] = true
		gn := &graph.Node{Label: wn.Label}
		for range wn.Outputs {
			gn.Outputs = append(gn.Outputs, graph.OutputPort{})
		}
		label := wn.Label
		if label == "" {
			label = key
		}
		out.Nodes = append(out.Nodes, &Node{
			ID:       key,
			Label:    label,
			Kind:     graph.NormalizeKind(wn.Type),
			Role:     wn.Role,
			Outputs:  append([]string(nil), wn.Outputs...),
			Position: geometry.Point{X: wn.PositionX, Y: wn.PositionY},
			Size:     DefaultSize(gn),
		})
	}

	for _, wc := range def.Connections {
		if !known[wc.FromNode] || !known[wc.ToNode] {
			continue
		}
		e := Edge{From: wc.FromNode, To: wc.ToNode}
		if wc.Condition != nil {
			e.Label = *wc.Condition
		}
		out.Edges = append(out.Edges, e)
	}

	out.Levels = levels(out)
	return out
}

// levels ranks nodes by BFS distance from the start nodes, or from nodes
// without incoming edges when there is no start node. Cycles are fine.
func levels(m *Model) [][]string {
	if len(m.Nodes) == 0 {
		return nil
	}
	adj := make(map[string][]string)
	indeg := make(map[string]int)
	for _, e := range m.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		indeg[e.To]++
	}

	var roots []string
	for _, n := range m.Nodes {
		if n.Kind == graph.KindStart {
			roots = append(roots, n.ID)
		}
	}
	if len(roots) == 0 {
		for _, n := range m.Nodes {
			if indeg[n.ID] == 0 {
				roots = append(roots, n.ID)
			}
		}
	}

	depth := make(map[string]int)
	queue := make([]string, 0, len(m.Nodes))
	for _, r := range roots {
		depth[r] = 0
		queue = append(queue, r)
	}
	maxDepth := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[id] + 1
			if depth[next] > maxDepth {
				maxDepth = depth[next]
			}
			queue = append(queue, next)
		}
	}

	out := make([][]string, maxDepth+1)
	var unreached []string
	for _, n := range m.Nodes {
		d, ok := depth[n.ID]
		if !ok {
			unreached = append(unreached, n.ID)
			continue
		}
		out[d] = append(out[d], n.ID)
	}
	if len(roots) == 0 {
		out = nil
	}
	if len(unreached) > 0 {
		out = append(out, unreached)
	}
	return out
}

func (m *Model) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
