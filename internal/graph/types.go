package graph

import (
	"strings"

	"github.com/rendis/flowcanvas/internal/geometry"
)

// Kind enumerates the workflow step types the editor knows about.
type Kind string

const (
	KindStart           Kind = "start"
	KindEnd             Kind = "end"
	KindDecision        Kind = "decision"
	KindNotification    Kind = "notification"
	KindTask            Kind = "task"
	KindStaffSubmission Kind = "staff_submission"
	KindApproval        Kind = "approval"
)

// Kinds lists every known kind in declaration order.
var Kinds = []Kind{
	KindStart, KindEnd, KindDecision, KindNotification,
	KindTask, KindStaffSubmission, KindApproval,
}

// NormalizeKind lower-cases raw. Unknown kinds are kept as-is so they
// survive a round trip; Valid reports whether the result is known.
func NormalizeKind(raw string) Kind {
	return Kind(strings.ToLower(raw))
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// OutputPort is a labeled output slot. IDs exist only at runtime and are
// regenerated on every load.
type OutputPort struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Node is a workflow step placed on the canvas.
type Node struct {
	ID          string          `json:"id"`
	ExternalID  string          `json:"external_id"`
	Label       string          `json:"label"`
	Kind        Kind            `json:"kind"`
	Description string          `json:"description,omitempty"`
	Role        string          `json:"role,omitempty"`
	Message     string          `json:"message,omitempty"`
	Outputs     []OutputPort    `json:"outputs,omitempty"`
	Position    *geometry.Point `json:"position,omitempty"`
}

// Port returns the output port with the given id.
func (n *Node) Port(id string) (OutputPort, bool) {
	for _, p := range n.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return OutputPort{}, false
}

// PortByLabel returns the first output port whose label equals label.
func (n *Node) PortByLabel(label string) (OutputPort, bool) {
	for _, p := range n.Outputs {
		if p.Label == label {
			return p, true
		}
	}
	return OutputPort{}, false
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Outputs != nil {
		cp.Outputs = append(make([]OutputPort, 0, len(n.Outputs)), n.Outputs...)
	}
	if n.Position != nil {
		pos := *n.Position
		cp.Position = &pos
	}
	return &cp
}

// NodePatch lists the fields UpdateNode merges into an existing node.
// Nil fields are left untouched.
type NodePatch struct {
	ID          string
	ExternalID  *string
	Label       *string
	Kind        *Kind
	Description *string
	Role        *string
	Message     *string
	Outputs     *[]OutputPort
	Position    *geometry.Point
}

// Connection is a directed edge between two nodes. SourceNodeID and
// TargetNodeID reference Node.ID and are empty when the wire reference did
// not resolve; the external ids are kept for round-tripping.
type Connection struct {
	ID               string  `json:"id"`
	SourceNodeID     string  `json:"source_node_id"`
	TargetNodeID     string  `json:"target_node_id"`
	SourceExternalID string  `json:"source_external_id"`
	TargetExternalID string  `json:"target_external_id"`
	Condition        *string `json:"condition"`
	OutputPortID     string  `json:"output_port_id,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Condition != nil {
		cond := *c.Condition
		cp.Condition = &cond
	}
	return &cp
}

// SizeFunc reports a node's rendered size in logical units. It belongs to
// the rendering layer since size depends on content.
type SizeFunc func(*Node) geometry.Size
