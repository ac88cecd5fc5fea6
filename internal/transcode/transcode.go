// Package transcode converts between the wire workflow definition and the
// editor's graph model.
package transcode

import (
	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Load replaces the contents of m with def and returns the document
// header to hand back to Save. Port ids are generated fresh on every load;
// newID may be nil to use random UUIDs.
func Load(def *schema.WorkflowDefinition, m *graph.Model, newID func() string) schema.Header {
	if newID == nil {
		newID = uuid.NewString
	}

	nodes := make([]*graph.Node, 0, len(def.Nodes))
	seen := make(map[string]bool, len(def.Nodes))
	for _, wn := range def.Nodes {
		id := wn.ID
		if id == "" || seen[id] {
			id = newID()
		}
		seen[id] = true

		n := &graph.Node{
			ID:          id,
			ExternalID:  wn.NodeID,
			Label:       wn.Label,
			Kind:        graph.NormalizeKind(wn.Type),
			Description: wn.Description,
			Role:        wn.Role,
			Message:     wn.Message,
			Position:    &geometry.Point{X: wn.PositionX, Y: wn.PositionY},
		}
		// An empty list stays distinct from a missing one.
		if wn.Outputs != nil {
			n.Outputs = make([]graph.OutputPort, len(wn.Outputs))
			for i, label := range wn.Outputs {
				n.Outputs[i] = graph.OutputPort{ID: newID(), Label: label}
			}
		}
		nodes = append(nodes, n)
	}

	byExternal := func(ext string) *graph.Node {
		for _, n := range nodes {
			if n.ExternalID == ext {
				return n
			}
		}
		return nil
	}

	conns := make([]*graph.Connection, 0, len(def.Connections))
	for _, wc := range def.Connections {
		c := &graph.Connection{
			ID:               wc.ID,
			SourceExternalID: wc.FromNode,
			TargetExternalID: wc.ToNode,
		}
		if c.ID == "" {
			c.ID = newID()
		}
		if wc.Condition != nil {
			c.Condition = schema.StringPtr(*wc.Condition)
		}
		src := byExternal(wc.FromNode)
		if src != nil {
			c.SourceNodeID = src.ID
			if c.Condition != nil {
				if p, ok := src.PortByLabel(*c.Condition); ok {
					c.OutputPortID = p.ID
				}
			}
		}
		if dst := byExternal(wc.ToNode); dst != nil {
			c.TargetNodeID = dst.ID
		}
		conns = append(conns, c)
	}

	m.SetNodes(nodes)
	m.SetConnections(conns)
	m.DeselectAll()
	m.SetZoom(1)
	m.SetPan(0, 0)
	return def.Header()
}

// Save renders m as a wire document carrying header.
func Save(m *graph.Model, header schema.Header) *schema.WorkflowDefinition {
	def := &schema.WorkflowDefinition{
		ID:           header.ID,
		WorkflowType: header.WorkflowType,
		WorkflowName: header.WorkflowName,
		Revision:     header.Revision,
		IsActive:     header.IsActive,
		CreatedAt:    header.CreatedAt,
		UpdatedAt:    header.UpdatedAt,
		Nodes:        make([]schema.Node, 0, m.NodeCount()),
		Connections:  make([]schema.Connection, 0, m.ConnectionCount()),
	}

	m.EachNode(func(n *graph.Node) bool {
		wn := schema.Node{
			ID:          n.ID,
			NodeID:      n.ExternalID,
			Label:       n.Label,
			Type:        string(n.Kind),
			Description: n.Description,
			Role:        n.Role,
			Message:     n.Message,
		}
		if n.Position != nil {
			wn.PositionX = n.Position.X
			wn.PositionY = n.Position.Y
		}
		if n.Outputs != nil {
			wn.Outputs = make([]string, 0, len(n.Outputs))
		}
		for _, p := range n.Outputs {
			wn.Outputs = append(wn.Outputs, p.Label)
		}
		def.Nodes = append(def.Nodes, wn)
		return true
	})

	for _, c := range m.Connections() {
		wc := schema.Connection{
			ID:       c.ID,
			FromNode: c.SourceExternalID,
			ToNode:   c.TargetExternalID,
		}
		src, srcOK := m.Node(c.SourceNodeID)
		if srcOK {
			wc.FromNode = src.ExternalID
		}
		if dst, ok := m.Node(c.TargetNodeID); ok {
			wc.ToNode = dst.ExternalID
		}

		var port graph.OutputPort
		portOK := false
		if srcOK && c.OutputPortID != "" {
			port, portOK = src.Port(c.OutputPortID)
		}
		switch {
		case portOK:
			wc.Condition = schema.StringPtr(port.Label)
		case c.Condition != nil:
			wc.Condition = schema.StringPtr(*c.Condition)
		}
		def.Connections = append(def.Connections, wc)
	}
	return def
}
