package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
	"github.com/rendis/flowcanvas/pkg/schema"
)

// Every node is 80x48 logical units: ten columns by three rows at zoom 1.
func fixedSize(*graph.Node) geometry.Size { return geometry.Size{Width: 80, Height: 48} }

func testDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		WorkflowType: "leave_request",
		WorkflowName: "Leave",
		Revision:     "v1",
		Nodes: []schema.Node{
			{ID: "1", NodeID: "a", Label: "Start", Type: "start", PositionX: 0, PositionY: 0},
			{ID: "2", NodeID: "b", Label: "Review", Type: "approval", Outputs: []string{"Approve", "Reject"}, PositionX: 240, PositionY: 0},
			{ID: "3", NodeID: "c", Label: "Done", Type: "end", PositionX: 240, PositionY: 160},
		},
		Connections: []schema.Connection{
			{ID: "c1", FromNode: "a", ToNode: "b"},
		},
	}
}

type harness struct {
	t       *testing.T
	session *designer.Session
	model   Model
	copied  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t}
	h.session = designer.New(designer.Deps{
		SessionID: "tui-test",
		Sizer:     fixedSize,
		Surface:   geometry.FixedSurface{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.session.LoadDefinition(context.Background(), testDefinition())
	h.model = New(context.Background(), h.session, func(text string) error {
		h.copied = text
		return nil
	})
	h.send(tea.WindowSizeMsg{Width: 80, Height: 20})
	return h
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

func (h *harness) key(s string) tea.Cmd {
	return h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) mouse(typ tea.MouseEventType, col, row int) {
	h.send(tea.MouseMsg{X: col, Y: row, Type: typ})
}

func (h *harness) node(external string) *graph.Node {
	var out *graph.Node
	h.session.View(func(g *graph.Model) {
		g.EachNode(func(n *graph.Node) bool {
			if n.ExternalID == external {
				out = n.Clone()
				return false
			}
			return true
		})
	})
	require.NotNil(h.t, out, "node %s", external)
	return out
}

func (h *harness) connections() []*graph.Connection {
	var out []*graph.Connection
	h.session.View(func(g *graph.Model) { out = g.Connections() })
	return out
}

func TestLayoutAndHitTest(t *testing.T) {
	h := newHarness(t)
	var boxes []box
	h.session.View(func(g *graph.Model) {
		boxes = layout(g, fixedSize, geometry.FixedSurface{})
	})
	require.Len(t, boxes, 3)
	assert.Equal(t, box{nodeID: h.node("a").ID, col0: 0, row0: 0, col1: 9, row1: 2}, boxes[0])

	tests := []struct {
		name     string
		col, row int
		kind     hitKind
		node     string
	}{
		{"body", 3, 1, hitNode, "a"},
		{"output port", 10, 1, hitPort, "a"},
		{"empty canvas", 20, 8, hitCanvas, ""},
		{"second node", 35, 11, hitNode, "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id := hitTest(boxes, tt.col, tt.row)
			assert.Equal(t, tt.kind, kind)
			if tt.node != "" {
				assert.Equal(t, h.node(tt.node).ID, id)
			} else {
				assert.Empty(t, id)
			}
		})
	}
}

func TestMouseDragMovesNode(t *testing.T) {
	h := newHarness(t)

	h.mouse(tea.MouseLeft, 2, 1)
	assert.Equal(t, gesture.DraggingNode, h.session.State())
	h.mouse(tea.MouseMotion, 5, 2)
	h.mouse(tea.MouseRelease, 5, 2)

	assert.Equal(t, gesture.Idle, h.session.State())
	a := h.node("a")
	assert.Equal(t, geometry.Point{X: 24, Y: 16}, *a.Position)
	assert.True(t, h.session.Dirty())

	var selected string
	h.session.View(func(g *graph.Model) { selected = g.SelectedNodeID() })
	assert.Equal(t, a.ID, selected)
}

func TestRepeatedPressWhileDraggingMoves(t *testing.T) {
	h := newHarness(t)
	h.mouse(tea.MouseLeft, 2, 1)
	h.mouse(tea.MouseLeft, 4, 1)
	h.mouse(tea.MouseRelease, 4, 1)
	assert.Equal(t, geometry.Point{X: 16, Y: 0}, *h.node("a").Position)
}

func TestMousePanIsNotDirty(t *testing.T) {
	h := newHarness(t)
	h.mouse(tea.MouseLeft, 50, 8)
	assert.Equal(t, gesture.Panning, h.session.State())
	h.mouse(tea.MouseMotion, 52, 9)
	h.mouse(tea.MouseRelease, 52, 9)

	var pan geometry.Point
	h.session.View(func(g *graph.Model) { pan = g.Pan() })
	assert.Equal(t, geometry.Point{X: 16, Y: 16}, pan)
	assert.False(t, h.session.Dirty())
}

func TestMouseDrawsConnection(t *testing.T) {
	h := newHarness(t)
	b, c := h.node("b"), h.node("c")

	// b's output port sits right of its box; c's input port left of its box.
	h.mouse(tea.MouseLeft, 40, 1)
	assert.Equal(t, gesture.DrawingConnection, h.session.State())
	h.mouse(tea.MouseMotion, 29, 11)
	_, ok := h.session.Preview()
	assert.True(t, ok)
	assert.Contains(t, h.model.View(), "◆")
	h.mouse(tea.MouseRelease, 29, 11)

	conns := h.connections()
	require.Len(t, conns, 2)
	assert.Equal(t, b.ID, conns[1].SourceNodeID)
	assert.Equal(t, c.ID, conns[1].TargetNodeID)
	assert.Nil(t, conns[1].Condition)
}

func TestMouseDropOnEmptyCanvasCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.mouse(tea.MouseLeft, 40, 1)
	h.mouse(tea.MouseRelease, 70, 16)
	assert.Len(t, h.connections(), 1)
	assert.Equal(t, gesture.Idle, h.session.State())
}

func TestEscCancelsGesture(t *testing.T) {
	h := newHarness(t)
	h.mouse(tea.MouseLeft, 40, 1)
	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, gesture.Idle, h.session.State())
	h.mouse(tea.MouseRelease, 29, 11)
	assert.Len(t, h.connections(), 1)
}

func TestZoomKeysClamp(t *testing.T) {
	h := newHarness(t)
	zoom := func() float64 {
		var z float64
		h.session.View(func(g *graph.Model) { z = g.Zoom() })
		return z
	}

	h.key("+")
	assert.InDelta(t, 1.25, zoom(), 1e-9)
	for i := 0; i < 20; i++ {
		h.key("-")
	}
	assert.InDelta(t, minZoom, zoom(), 1e-9)
	h.key("0")
	assert.InDelta(t, 1.0, zoom(), 1e-9)
	assert.False(t, h.session.Dirty())
}

func TestConnectionKeys(t *testing.T) {
	h := newHarness(t)
	h.session.Connect(context.Background(), h.node("b").ID, h.node("c").ID)
	require.Len(t, h.connections(), 2)

	selected := func() *graph.Connection {
		var out *graph.Connection
		h.session.View(func(g *graph.Model) { out, _ = g.SelectedConnection() })
		return out
	}

	h.key("c")
	require.NotNil(t, selected())
	assert.Equal(t, h.connections()[0].ID, selected().ID)
	h.key("c")
	assert.Equal(t, h.connections()[1].ID, selected().ID)

	h.key("o")
	require.NotNil(t, h.connections()[1].Condition)
	assert.Equal(t, "Approve", *h.connections()[1].Condition)
	h.key("o")
	assert.Equal(t, "Reject", *h.connections()[1].Condition)
	h.key("o")
	assert.Nil(t, h.connections()[1].Condition)

	h.key("c")
	h.key("c")
	h.key("x")
	require.Len(t, h.connections(), 1)
	assert.Equal(t, h.node("a").ID, h.connections()[0].SourceNodeID)
}

func TestDeleteSelectedNode(t *testing.T) {
	h := newHarness(t)
	h.mouse(tea.MouseLeft, 2, 1)
	h.mouse(tea.MouseRelease, 2, 1)
	h.key("x")

	var count int
	h.session.View(func(g *graph.Model) { count = g.NodeCount() })
	assert.Equal(t, 2, count)
	assert.Empty(t, h.connections())
}

func TestCopyMermaid(t *testing.T) {
	h := newHarness(t)
	h.key("y")
	assert.True(t, strings.HasPrefix(h.copied, "graph LR"))
	assert.Contains(t, h.copied, "Review")
	assert.Contains(t, h.model.View(), "mermaid copied")
}

func TestCopyMermaidError(t *testing.T) {
	h := newHarness(t)
	h.model.clipboard = func(string) error { return errors.New("no clipboard") }
	h.key("y")
	assert.Contains(t, h.model.View(), "no clipboard")
}

func TestSaveWithoutBackendReportsFailure(t *testing.T) {
	h := newHarness(t)
	cmd := h.key("s")
	require.NotNil(t, cmd)
	assert.True(t, h.model.saving)
	assert.Nil(t, h.key("s"), "second save is ignored while one is pending")

	h.send(cmd())
	assert.False(t, h.model.saving)
	assert.Error(t, h.model.err)
	assert.Contains(t, h.model.View(), "save failed")
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	cmd := h.key("q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestViewShowsNodesAndStatus(t *testing.T) {
	h := newHarness(t)
	out := h.model.View()
	assert.Contains(t, out, "Start")
	assert.Contains(t, out, "Review")
	assert.Contains(t, out, "Leave v1")
	assert.NotContains(t, out, "modified")

	h.mouse(tea.MouseLeft, 2, 1)
	h.mouse(tea.MouseMotion, 3, 1)
	h.mouse(tea.MouseRelease, 3, 1)
	assert.Contains(t, h.model.View(), "modified")
}

func TestRenderPlain(t *testing.T) {
	h := newHarness(t)
	var g *grid
	h.session.View(func(m *graph.Model) {
		g, _ = render(m, fixedSize, geometry.FixedSurface{}, nil, 50, 14)
	})
	lines := strings.Split(g.plain(), "\n")
	require.Len(t, lines, 14)
	assert.Equal(t, "┌────────┐", string([]rune(lines[0])[:10]))
	assert.Equal(t, "│Start   │●", string([]rune(lines[1])[:11]))
	assert.Equal(t, '▶', []rune(lines[1])[29])
	assert.Equal(t, "Review", string([]rune(lines[1])[31:37]))
	assert.Equal(t, "└────────┘", string([]rune(lines[2])[30:40]))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab…", clip("abcdef", 3))
	assert.Equal(t, "…", clip("abc", 1))
	assert.Equal(t, "", clip("abc", 0))
}
