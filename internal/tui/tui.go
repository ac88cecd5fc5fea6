// Package tui is a terminal host for a designer session. Terminal cells
// are mapped onto screen coordinates so mouse presses, drags and releases
// drive the same gesture machine a pointer would.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/flowcanvas/internal/designer"
	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
)

const (
	zoomStep = 1.25
	minZoom  = 0.25
	maxZoom  = 4.0
	panStep  = 4 // cells
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("236")).Padding(0, 1)
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Background(lipgloss.Color("236")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const helpText = "drag node: move · drag ●: connect · drag canvas: pan · +/-: zoom · c: next edge · o: output · x: delete · s: save · d: draft · y: copy mermaid · q: quit"

// Clipboard writes text to the system clipboard.
type Clipboard func(text string) error

type saveDoneMsg designer.SaveResult

type draftDoneMsg struct{ err error }

// Model is the bubbletea model for one session.
type Model struct {
	ctx       context.Context
	session   *designer.Session
	clipboard Clipboard

	width   int
	height  int
	status  string
	err     error
	saving  bool
	pressed bool
}

// New returns a Model editing session. A nil clipboard writes to the
// system clipboard.
func New(ctx context.Context, session *designer.Session, cb Clipboard) Model {
	if cb == nil {
		cb = clipboard.WriteAll
	}
	return Model{ctx: ctx, session: session, clipboard: cb, width: 80, height: 24}
}

// Run starts the program full-screen with mouse tracking and blocks until
// the user quits or ctx is cancelled.
func Run(ctx context.Context, session *designer.Session) error {
	p := tea.NewProgram(New(ctx, session, nil), tea.WithAltScreen(), tea.WithMouseCellMotion())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case saveDoneMsg:
		m.saving = false
		if msg.Err != nil {
			m.err = msg.Err
			m.status = "save failed, draft kept"
		} else {
			m.err = nil
			m.status = "saved " + msg.Definition.Revision
		}
		return m, nil

	case draftDoneMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = "draft stored"
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) Model {
	ev := pointerAt(msg.X, msg.Y)
	switch msg.Type {
	case tea.MouseLeft:
		// Some terminals report held-button motion as repeated presses.
		if m.pressed && m.session.State() != gesture.Idle {
			m.session.PointerMove(ev)
			return m
		}
		m.pressed = true
		m.press(msg.X, msg.Y, ev)
	case tea.MouseMotion:
		if m.pressed {
			m.session.PointerMove(ev)
		}
	case tea.MouseRelease:
		if m.pressed {
			m.pressed = false
			m.session.PointerUp(m.ctx, ev)
		}
	case tea.MouseWheelUp:
		m.zoomBy(zoomStep)
	case tea.MouseWheelDown:
		m.zoomBy(1 / zoomStep)
	}
	return m
}

func (m *Model) press(col, row int, ev gesture.PointerEvent) {
	var boxes []box
	m.session.View(func(g *graph.Model) {
		boxes = layout(g, m.session.Size, m.session.Surface())
	})
	kind, id := hitTest(boxes, col, row)
	switch kind {
	case hitPort:
		m.session.PointerDownPort(id, ev)
	case hitNode:
		m.session.PointerDownNode(id, ev)
	default:
		m.session.PointerDownCanvas(ev)
	}
}

func pointerAt(col, row int) gesture.PointerEvent {
	p := cellPoint(col, row)
	return gesture.PointerEvent{ClientX: p.X, ClientY: p.Y, Button: gesture.ButtonPrimary}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc":
		m.session.CancelGesture()
		m.pressed = false
	case "+", "=":
		m.zoomBy(zoomStep)
	case "-":
		m.zoomBy(1 / zoomStep)
	case "0":
		m.session.Update(m.ctx, func(g *graph.Model) {
			g.SetZoom(1)
			g.SetPan(0, 0)
		})
	case "left", "h":
		m.panBy(panStep, 0)
	case "right", "l":
		m.panBy(-panStep, 0)
	case "up", "k":
		m.panBy(0, panStep)
	case "down", "j":
		m.panBy(0, -panStep)
	case "c":
		m.session.Update(m.ctx, selectNextConnection)
	case "o":
		m.session.Update(m.ctx, cycleOutput)
	case "x", "delete", "backspace":
		m.session.Update(m.ctx, deleteSelection)
	case "s":
		if m.saving {
			return m, nil
		}
		m.saving = true
		m.status = "saving…"
		return m, m.saveCmd()
	case "d":
		return m, m.draftCmd()
	case "y":
		var text string
		m.session.View(func(g *graph.Model) {
			text = diagram.RenderMermaid(diagram.FromModel(g, m.session.Size))
		})
		if err := m.clipboard(text); err != nil {
			m.err = err
		} else {
			m.status = "mermaid copied"
		}
	}
	return m, nil
}

func (m *Model) zoomBy(factor float64) {
	m.session.Update(m.ctx, func(g *graph.Model) {
		z := g.Zoom() * factor
		if z < minZoom {
			z = minZoom
		}
		if z > maxZoom {
			z = maxZoom
		}
		g.SetZoom(z)
	})
}

func (m *Model) panBy(cols, rows int) {
	m.session.Update(m.ctx, func(g *graph.Model) {
		p := g.Pan()
		g.SetPan(p.X+float64(cols)*cellW, p.Y+float64(rows)*cellH)
	})
}

func (m Model) saveCmd() tea.Cmd {
	ch := m.session.SaveAsync(m.ctx)
	return func() tea.Msg {
		return saveDoneMsg(<-ch)
	}
}

func (m Model) draftCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := m.session.SaveDraft(m.ctx)
		return draftDoneMsg{err: err}
	}
}

// selectNextConnection moves the connection selection forward in model
// order, wrapping at the end.
func selectNextConnection(g *graph.Model) {
	conns := g.Connections()
	if len(conns) == 0 {
		return
	}
	next := 0
	if cur, ok := g.SelectedConnection(); ok {
		for i, c := range conns {
			if c.ID == cur.ID {
				next = (i + 1) % len(conns)
				break
			}
		}
	}
	g.SelectConnection(conns[next])
}

// cycleOutput binds the selected connection to its source's next output
// port, then back to unbound.
func cycleOutput(g *graph.Model) {
	sel, ok := g.SelectedConnection()
	if !ok {
		return
	}
	// The selection is a snapshot; read the live binding.
	conn, ok := g.Connection(sel.ID)
	if !ok {
		return
	}
	src, ok := g.Node(conn.SourceNodeID)
	if !ok || len(src.Outputs) == 0 {
		return
	}
	next := src.Outputs[0].ID
	for i, p := range src.Outputs {
		if p.ID == conn.OutputPortID {
			if i+1 < len(src.Outputs) {
				next = src.Outputs[i+1].ID
			} else {
				next = ""
			}
			break
		}
	}
	g.AssignOutput(conn.ID, next)
}

func deleteSelection(g *graph.Model) {
	if conn, ok := g.SelectedConnection(); ok {
		g.RemoveConnection(conn.ID)
		return
	}
	if id := g.SelectedNodeID(); id != "" {
		g.RemoveNode(id)
	}
}

func (m Model) View() string {
	canvasRows := m.height - 2
	if canvasRows < 1 {
		canvasRows = 1
	}

	var preview *gesture.Preview
	if p, ok := m.session.Preview(); ok {
		preview = &p
	}
	var g *grid
	m.session.View(func(gm *graph.Model) {
		g, _ = render(gm, m.session.Size, m.session.Surface(), preview, m.width, canvasRows)
	})

	var b strings.Builder
	b.WriteString(g.String())
	b.WriteByte('\n')
	b.WriteString(m.statusLine())
	b.WriteByte('\n')
	if m.err != nil {
		b.WriteString(errorStyle.Render(clip(m.err.Error(), m.width)))
	} else {
		b.WriteString(helpStyle.Render(clip(helpText, m.width)))
	}
	return b.String()
}

func (m Model) statusLine() string {
	h := m.session.Header()
	name := h.WorkflowName
	if name == "" {
		name = h.WorkflowType
	}
	if name == "" {
		name = "untitled"
	}
	var zoom float64
	m.session.View(func(g *graph.Model) { zoom = g.Zoom() })

	left := fmt.Sprintf("%s %s │ zoom %.2f │ %s", name, h.Revision, zoom, m.session.State())
	if m.status != "" {
		left += " │ " + m.status
	}
	line := statusStyle.Render(left)
	if m.session.Dirty() {
		line += dirtyStyle.Render(" ● modified ")
	}
	return line
}
