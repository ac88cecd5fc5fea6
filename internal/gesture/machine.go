// Package gesture turns raw pointer streams into pan, node-drag and
// connection-draw gestures against a graph model.
package gesture

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
)

// State is the machine's current gesture.
type State int

const (
	Idle State = iota
	Panning
	DraggingNode
	DrawingConnection
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Panning:
		return "panning"
	case DraggingNode:
		return "dragging_node"
	case DrawingConnection:
		return "drawing_connection"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// PortMargin is the gap between a node edge and its port anchors.
	PortMargin = 2.0
	// DefaultHitRadius is the maximum drop distance from an input port.
	DefaultHitRadius = 80.0
)

// TargetPolicy decides which candidate wins when several input ports lie
// within the hit radius of a drop.
type TargetPolicy string

const (
	PolicyFirst   TargetPolicy = "first"
	PolicyNearest TargetPolicy = "nearest"
)

// ParsePolicy parses a policy name; empty selects PolicyNearest.
func ParsePolicy(s string) (TargetPolicy, error) {
	switch TargetPolicy(s) {
	case "", PolicyNearest:
		return PolicyNearest, nil
	case PolicyFirst:
		return PolicyFirst, nil
	default:
		return "", fmt.Errorf("unknown target policy %q", s)
	}
}

// Outcome classifies how a connection drop resolved.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeNoTarget  Outcome = "no_target"
	OutcomeSelf      Outcome = "self_connection"
	OutcomeDuplicate Outcome = "duplicate"
)

// Resolution describes a finished connection gesture.
type Resolution struct {
	Outcome      Outcome        `json:"outcome"`
	SourceNodeID string         `json:"source_node_id"`
	TargetNodeID string         `json:"target_node_id,omitempty"`
	ConnectionID string         `json:"connection_id,omitempty"`
	Drop         geometry.Point `json:"drop"`
}

// Preview is the rubber-band line drawn while a connection is in progress.
type Preview struct {
	SourceNodeID string
	Start        geometry.Point
	End          geometry.Point
}

// Options configures a Machine. Model and Size are required.
type Options struct {
	Model     *graph.Model
	Size      graph.SizeFunc
	Surface   geometry.Surface
	Document  Document
	HitRadius float64
	Policy    TargetPolicy
	NewID     func() string
	OnResolve func(Resolution)
	Logger    *slog.Logger
}

// Machine is the gesture state machine. It is not safe for concurrent use;
// hosts that share one across goroutines serialize access themselves.
type Machine struct {
	model     *graph.Model
	size      graph.SizeFunc
	surface   geometry.Surface
	doc       Document
	hitRadius float64
	policy    TargetPolicy
	newID     func() string
	onResolve func(Resolution)
	logger    *slog.Logger

	state   State
	release func()

	panStart geometry.Point
	panBase  geometry.Point

	dragNodeID string
	dragOffset geometry.Point

	connSource string
	connStart  geometry.Point
	connEnd    geometry.Point
}

// New creates a Machine in the Idle state. A nil Document gets a private
// Dispatcher, reachable through Document.
func New(opts Options) *Machine {
	m := &Machine{
		model:     opts.Model,
		size:      opts.Size,
		surface:   opts.Surface,
		doc:       opts.Document,
		hitRadius: opts.HitRadius,
		policy:    opts.Policy,
		newID:     opts.NewID,
		onResolve: opts.OnResolve,
		logger:    opts.Logger,
	}
	if m.doc == nil {
		m.doc = NewDispatcher()
	}
	if m.hitRadius <= 0 {
		m.hitRadius = DefaultHitRadius
	}
	if m.policy == "" {
		m.policy = PolicyNearest
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.size == nil {
		m.size = func(*graph.Node) geometry.Size { return geometry.Size{} }
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return m
}

// Document returns the document the machine listens on.
func (m *Machine) Document() Document { return m.doc }

// State returns the active gesture.
func (m *Machine) State() State { return m.state }

// Preview returns the in-progress connection line.
func (m *Machine) Preview() (Preview, bool) {
	if m.state != DrawingConnection {
		return Preview{}, false
	}
	return Preview{SourceNodeID: m.connSource, Start: m.connStart, End: m.connEnd}, true
}

// StartPan begins panning from a press on empty canvas.
func (m *Machine) StartPan(ev PointerEvent) {
	if m.state != Idle || ev.Button != ButtonPrimary {
		return
	}
	m.model.DeselectAll()
	m.panStart = ev.Point()
	m.panBase = m.model.Pan()
	m.enter(Panning)
}

// StartNodeDrag begins dragging nodeID from a press on its body.
func (m *Machine) StartNodeDrag(nodeID string, ev PointerEvent) {
	if m.state != Idle || ev.Button != ButtonPrimary {
		return
	}
	n, ok := m.model.Node(nodeID)
	if !ok || n.Position == nil {
		return
	}
	m.model.DeselectAll()
	m.model.SelectNode(nodeID)
	m.dragNodeID = nodeID
	m.dragOffset = m.logical(ev).Sub(*n.Position)
	m.enter(DraggingNode)
}

// StartConnection begins drawing a connection from nodeID's output port.
func (m *Machine) StartConnection(nodeID string, ev PointerEvent) {
	if m.state != Idle || ev.Button != ButtonPrimary {
		return
	}
	n, ok := m.model.Node(nodeID)
	if !ok || n.Position == nil {
		return
	}
	m.model.DeselectAll()
	m.connSource = nodeID
	m.connStart = OutputAnchor(n, m.size(n))
	m.connEnd = m.logical(ev)
	m.enter(DrawingConnection)
}

// OutputAnchor is the logical position of a node's output port.
func OutputAnchor(n *graph.Node, sz geometry.Size) geometry.Point {
	return geometry.Point{X: n.Position.X + sz.Width + PortMargin, Y: n.Position.Y + sz.Height/2}
}

// InputAnchor is the logical position of a node's input port.
func InputAnchor(n *graph.Node, sz geometry.Size) geometry.Point {
	return geometry.Point{X: n.Position.X - PortMargin, Y: n.Position.Y + sz.Height/2}
}

func (m *Machine) enter(s State) {
	m.state = s
	m.release = m.doc.Listen(m.handleMove, m.handleUp)
}

func (m *Machine) logical(ev PointerEvent) geometry.Point {
	return m.model.Viewport().ToLogical(m.surface, ev.Point())
}

func (m *Machine) handleMove(ev PointerEvent) {
	switch m.state {
	case Panning:
		delta := ev.Point().Sub(m.panStart).Scale(1 / m.model.Zoom())
		next := m.panBase.Add(delta)
		m.model.SetPan(next.X, next.Y)
	case DraggingNode:
		p := m.logical(ev).Sub(m.dragOffset)
		m.model.UpdateNodePosition(m.dragNodeID, p.X, p.Y)
	case DrawingConnection:
		m.connEnd = m.logical(ev)
	}
}

func (m *Machine) handleUp(ev PointerEvent) {
	state := m.state
	if state == Idle {
		return
	}
	defer m.reset()

	if state == DrawingConnection {
		m.resolve(m.logical(ev))
	}
	m.logger.Debug("gesture finished", slog.String("state", state.String()))
}

// Cancel abandons the active gesture without resolving it.
func (m *Machine) Cancel() {
	if m.state != Idle {
		m.reset()
	}
}

func (m *Machine) reset() {
	if m.release != nil {
		m.release()
		m.release = nil
	}
	m.state = Idle
	m.dragNodeID = ""
	m.dragOffset = geometry.Point{}
	m.connSource = ""
	m.connStart = geometry.Point{}
	m.connEnd = geometry.Point{}
}

func (m *Machine) resolve(drop geometry.Point) {
	res := Resolution{Outcome: OutcomeNoTarget, SourceNodeID: m.connSource}
	if target := m.findTarget(drop); target != nil {
		res = Connect(m.model, m.connSource, target.ID, m.newID)
	}
	res.Drop = drop
	m.logger.Debug("connection resolved",
		slog.String("outcome", string(res.Outcome)),
		slog.String("source", res.SourceNodeID),
		slog.String("target", res.TargetNodeID))
	if m.onResolve != nil {
		m.onResolve(res)
	}
}

// Connect applies the connection rules to an explicit source/target pair:
// self and duplicate edges are dropped, anything else is added with a
// fresh id and no condition. Missing nodes resolve to OutcomeNoTarget.
func Connect(model *graph.Model, sourceID, targetID string, newID func() string) Resolution {
	res := Resolution{Outcome: OutcomeNoTarget, SourceNodeID: sourceID}
	source, ok := model.Node(sourceID)
	if !ok {
		return res
	}
	target, ok := model.Node(targetID)
	if !ok {
		return res
	}
	res.TargetNodeID = target.ID
	switch {
	case target.ID == source.ID:
		res.Outcome = OutcomeSelf
	case model.HasConnection(source.ID, target.ID):
		res.Outcome = OutcomeDuplicate
	default:
		conn := &graph.Connection{
			ID:               newID(),
			SourceNodeID:     source.ID,
			TargetNodeID:     target.ID,
			SourceExternalID: source.ExternalID,
			TargetExternalID: target.ExternalID,
		}
		if model.AddConnection(conn) {
			res.Outcome = OutcomeCreated
			res.ConnectionID = conn.ID
		} else {
			res.Outcome = OutcomeDuplicate
		}
	}
	return res
}

// findTarget returns the node whose input port wins for drop under the
// configured policy. Ties under PolicyNearest keep model order.
func (m *Machine) findTarget(drop geometry.Point) *graph.Node {
	var best *graph.Node
	bestDist := math.Inf(1)
	m.model.EachNode(func(n *graph.Node) bool {
		if n.Position == nil {
			return true
		}
		d := geometry.Distance(drop, InputAnchor(n, m.size(n)))
		if d > m.hitRadius {
			return true
		}
		if m.policy == PolicyFirst {
			best = n
			return false
		}
		if d < bestDist {
			best, bestDist = n, d
		}
		return true
	})
	return best
}
