// Package graph holds the editor's authoritative node/connection set,
// selection and viewport. It performs no I/O and is owned by a single
// goroutine; callers that share a Model must serialize access themselves.
package graph

import "github.com/rendis/flowcanvas/internal/geometry"

// ChangeKind classifies a mutation reported to the change observer.
type ChangeKind string

const (
	ChangeNodesReplaced       ChangeKind = "nodes_replaced"
	ChangeConnectionsReplaced ChangeKind = "connections_replaced"
	ChangeNodeAdded           ChangeKind = "node_added"
	ChangeNodeUpdated         ChangeKind = "node_updated"
	ChangeNodeMoved           ChangeKind = "node_moved"
	ChangeNodeRemoved         ChangeKind = "node_removed"
	ChangeConnectionAdded     ChangeKind = "connection_added"
	ChangeConnectionUpdated   ChangeKind = "connection_updated"
	ChangeConnectionRemoved   ChangeKind = "connection_removed"
	ChangeSelection           ChangeKind = "selection"
	ChangeViewport            ChangeKind = "viewport"
	ChangeCleared             ChangeKind = "cleared"
)

// Change describes one mutation. ID names the affected node or connection
// when there is exactly one.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Model is the editor's in-memory graph. Every operation is total: misses
// are silent no-ops rather than errors.
type Model struct {
	nodes       []*Node
	connections []*Connection

	selectedNodeID string
	selectedConn   *Connection

	zoom float64
	pan  geometry.Point

	version  uint64
	observer func(Change)
}

// NewModel returns an empty model at zoom 1, pan (0,0).
func NewModel() *Model {
	return &Model{zoom: 1}
}

// OnChange installs fn as the change observer, replacing any previous one.
func (m *Model) OnChange(fn func(Change)) {
	m.observer = fn
}

// Version increases by one on every mutation. Hosts poll it to decide
// whether to re-render.
func (m *Model) Version() uint64 { return m.version }

func (m *Model) changed(kind ChangeKind, id string) {
	m.version++
	if m.observer != nil {
		m.observer(Change{Kind: kind, ID: id})
	}
}

// --- Bulk ---

// SetNodes replaces the node set.
func (m *Model) SetNodes(nodes []*Node) {
	m.nodes = append([]*Node(nil), nodes...)
	m.changed(ChangeNodesReplaced, "")
}

// SetConnections replaces the connection set.
func (m *Model) SetConnections(conns []*Connection) {
	m.connections = append([]*Connection(nil), conns...)
	m.changed(ChangeConnectionsReplaced, "")
}

// Clear resets nodes, connections, selection and viewport.
func (m *Model) Clear() {
	m.nodes = nil
	m.connections = nil
	m.selectedNodeID = ""
	m.selectedConn = nil
	m.zoom = 1
	m.pan = geometry.Point{}
	m.changed(ChangeCleared, "")
}

// --- Nodes ---

// AddNode appends node. A node whose id is already present is ignored.
func (m *Model) AddNode(node *Node) {
	if node == nil || m.indexOfNode(node.ID) >= 0 {
		return
	}
	m.nodes = append(m.nodes, node)
	m.changed(ChangeNodeAdded, node.ID)
}

// UpdateNode merges the non-nil fields of patch into the node with
// patch.ID.
func (m *Model) UpdateNode(patch NodePatch) {
	i := m.indexOfNode(patch.ID)
	if i < 0 {
		return
	}
	n := m.nodes[i]
	if patch.ExternalID != nil {
		n.ExternalID = *patch.ExternalID
	}
	if patch.Label != nil {
		n.Label = *patch.Label
	}
	if patch.Kind != nil {
		n.Kind = *patch.Kind
	}
	if patch.Description != nil {
		n.Description = *patch.Description
	}
	if patch.Role != nil {
		n.Role = *patch.Role
	}
	if patch.Message != nil {
		n.Message = *patch.Message
	}
	if patch.Outputs != nil {
		n.Outputs = append(make([]OutputPort, 0, len(*patch.Outputs)), (*patch.Outputs)...)
		m.dropStalePorts(n)
	}
	if patch.Position != nil {
		pos := *patch.Position
		n.Position = &pos
	}
	m.changed(ChangeNodeUpdated, n.ID)
}

// dropStalePorts unbinds connections leaving n through a port that no
// longer exists.
func (m *Model) dropStalePorts(n *Node) {
	for _, c := range m.connections {
		if c.SourceNodeID != n.ID || c.OutputPortID == "" {
			continue
		}
		if _, ok := n.Port(c.OutputPortID); !ok {
			c.OutputPortID = ""
		}
	}
}

// UpdateNodePosition moves a node's anchor. Nodes without a position are
// left alone.
func (m *Model) UpdateNodePosition(id string, x, y float64) {
	i := m.indexOfNode(id)
	if i < 0 || m.nodes[i].Position == nil {
		return
	}
	m.nodes[i].Position.X = x
	m.nodes[i].Position.Y = y
	m.changed(ChangeNodeMoved, id)
}

// RemoveNode deletes the node, every connection touching it, and the
// current selection.
func (m *Model) RemoveNode(id string) {
	kept := m.nodes[:0]
	for _, n := range m.nodes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	m.nodes = kept

	keptConns := m.connections[:0]
	for _, c := range m.connections {
		if c.SourceNodeID != id && c.TargetNodeID != id {
			keptConns = append(keptConns, c)
		}
	}
	m.connections = keptConns

	m.changed(ChangeNodeRemoved, id)
	m.DeselectAll()
}

// Node returns a copy of the node with id.
func (m *Model) Node(id string) (*Node, bool) {
	i := m.indexOfNode(id)
	if i < 0 {
		return nil, false
	}
	return m.nodes[i].Clone(), true
}

// Nodes returns copies of all nodes in model order.
func (m *Model) Nodes() []*Node {
	out := make([]*Node, len(m.nodes))
	for i, n := range m.nodes {
		out[i] = n.Clone()
	}
	return out
}

// NodeCount returns the number of nodes.
func (m *Model) NodeCount() int { return len(m.nodes) }

// EachNode calls fn for every node in model order without copying. fn must
// not retain or mutate the node.
func (m *Model) EachNode(fn func(*Node) bool) {
	for _, n := range m.nodes {
		if !fn(n) {
			return
		}
	}
}

func (m *Model) indexOfNode(id string) int {
	for i, n := range m.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// --- Connections ---

// AddConnection appends conn unless an edge with the same ordered
// (source, target) pair already exists. It reports whether conn was added.
func (m *Model) AddConnection(conn *Connection) bool {
	if conn == nil || m.HasConnection(conn.SourceNodeID, conn.TargetNodeID) {
		return false
	}
	m.connections = append(m.connections, conn)
	m.changed(ChangeConnectionAdded, conn.ID)
	return true
}

// HasConnection reports whether an edge source -> target exists.
func (m *Model) HasConnection(source, target string) bool {
	for _, c := range m.connections {
		if c.SourceNodeID == source && c.TargetNodeID == target {
			return true
		}
	}
	return false
}

// RemoveConnection deletes the connection with id and clears selection.
func (m *Model) RemoveConnection(id string) {
	kept := m.connections[:0]
	for _, c := range m.connections {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	m.connections = kept
	m.changed(ChangeConnectionRemoved, id)
	m.DeselectAll()
}

// AssignOutput binds a connection to one of its source node's output ports
// and sets its condition to the port label. An empty portID clears both.
// Ports that do not belong to the source node are ignored.
func (m *Model) AssignOutput(connectionID, portID string) {
	c := m.connection(connectionID)
	if c == nil {
		return
	}
	if portID == "" {
		c.OutputPortID = ""
		c.Condition = nil
		m.changed(ChangeConnectionUpdated, c.ID)
		return
	}
	i := m.indexOfNode(c.SourceNodeID)
	if i < 0 {
		return
	}
	port, ok := m.nodes[i].Port(portID)
	if !ok {
		return
	}
	label := port.Label
	c.OutputPortID = port.ID
	c.Condition = &label
	m.changed(ChangeConnectionUpdated, c.ID)
}

// Connection returns a copy of the connection with id.
func (m *Model) Connection(id string) (*Connection, bool) {
	c := m.connection(id)
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

func (m *Model) connection(id string) *Connection {
	for _, c := range m.connections {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Connections returns copies of all connections in model order.
func (m *Model) Connections() []*Connection {
	out := make([]*Connection, len(m.connections))
	for i, c := range m.connections {
		out[i] = c.Clone()
	}
	return out
}

// ConnectionCount returns the number of connections.
func (m *Model) ConnectionCount() int { return len(m.connections) }

// --- Selection ---

// SelectNode selects the node with id, or clears node selection when id is
// empty. Any selected connection is cleared.
func (m *Model) SelectNode(id string) {
	m.selectedNodeID = id
	m.selectedConn = nil
	m.changed(ChangeSelection, id)
}

// SelectConnection stores a copy of conn as the selection, or clears it
// when conn is nil. Any selected node is cleared.
func (m *Model) SelectConnection(conn *Connection) {
	m.selectedNodeID = ""
	m.selectedConn = conn.Clone()
	id := ""
	if conn != nil {
		id = conn.ID
	}
	m.changed(ChangeSelection, id)
}

// DeselectAll clears both selections.
func (m *Model) DeselectAll() {
	m.selectedNodeID = ""
	m.selectedConn = nil
	m.changed(ChangeSelection, "")
}

// SelectedNodeID returns the selected node id, or "".
func (m *Model) SelectedNodeID() string { return m.selectedNodeID }

// SelectedNode returns a copy of the selected node.
func (m *Model) SelectedNode() (*Node, bool) {
	if m.selectedNodeID == "" {
		return nil, false
	}
	return m.Node(m.selectedNodeID)
}

// SelectedConnection returns a copy of the selected connection.
func (m *Model) SelectedConnection() (*Connection, bool) {
	if m.selectedConn == nil {
		return nil, false
	}
	return m.selectedConn.Clone(), true
}

// --- Viewport ---

// SetZoom sets the zoom factor without clamping.
func (m *Model) SetZoom(z float64) {
	m.zoom = z
	m.changed(ChangeViewport, "")
}

// SetPan sets the pan offset without clamping.
func (m *Model) SetPan(x, y float64) {
	m.pan = geometry.Point{X: x, Y: y}
	m.changed(ChangeViewport, "")
}

// Zoom returns the zoom factor.
func (m *Model) Zoom() float64 { return m.zoom }

// Pan returns the pan offset.
func (m *Model) Pan() geometry.Point { return m.pan }

// Viewport returns zoom and pan together.
func (m *Model) Viewport() geometry.Viewport {
	return geometry.Viewport{Zoom: m.zoom, Pan: m.pan}
}
