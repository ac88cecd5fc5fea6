package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/flowcanvas/internal/graph"
)

// RenderDOT lays the model out with graphviz and returns the DOT source.
func RenderDOT(ctx context.Context, model *Model) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.XDOT)
}

// RenderImage renders the model as a PNG laid out by graphviz.
func RenderImage(ctx context.Context, model *Model) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.PNG)
}

func renderGraphviz(ctx context.Context, model *Model, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer g.Close()

	g.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := g.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(firstLine(node.Label))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		from, to := gvNodes[edge.From], gvNodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, eErr := g.CreateEdgeByName("", from, to)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Selected {
			e.SetColor(selectedColor)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

const selectedColor = "#f5b400"

// applyNodeStyle sets graphviz attributes based on node kind and selection.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case graph.KindStart:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.6)
		gvNode.SetHeight(0.6)
	case graph.KindEnd:
		gvNode.SetShape(cgraph.DoubleCircleShape)
		gvNode.SetWidth(0.6)
		gvNode.SetHeight(0.6)
	case graph.KindDecision:
		gvNode.SetShape(cgraph.DiamondShape)
	case graph.KindApproval:
		gvNode.SetShape(cgraph.HexagonShape)
	case graph.KindNotification:
		gvNode.SetShape(cgraph.EllipseShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if !node.Kind.Valid() {
		gvNode.SetStyle(cgraph.DashedNodeStyle)
		return
	}
	if node.Selected {
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor(selectedColor)
		gvNode.SetFontColor("black")
	}
}
