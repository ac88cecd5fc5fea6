package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/gesture"
	"github.com/rendis/flowcanvas/internal/graph"
)

// One terminal cell covers cellW x cellH screen units, so the gesture
// machine sees the same coordinates a pointer on a pixel canvas would.
const (
	cellW = 8.0
	cellH = 16.0
)

// cellPoint returns the screen point at the centre of cell (col, row).
func cellPoint(col, row int) geometry.Point {
	return geometry.Point{X: float64(col)*cellW + cellW/2, Y: float64(row)*cellH + cellH/2}
}

func toCell(p geometry.Point) (int, int) {
	return int(math.Floor(p.X / cellW)), int(math.Floor(p.Y / cellH))
}

type paint uint8

const (
	paintPlain paint = iota
	paintEdge
	paintSelected
	paintPort
	paintPreview
	paintInvalid
)

var paintStyles = map[paint]lipgloss.Style{
	paintPlain:    lipgloss.NewStyle(),
	paintEdge:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	paintSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	paintPort:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	paintPreview:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	paintInvalid:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
}

// box is a node's footprint in cells.
type box struct {
	nodeID                 string
	col0, row0, col1, row1 int
}

func (b box) midRow() int { return (b.row0 + b.row1) / 2 }

func (b box) outputCell() (int, int) { return b.col1 + 1, b.midRow() }

func (b box) inputCell() (int, int) { return b.col0 - 1, b.midRow() }

func (b box) contains(col, row int) bool {
	return col >= b.col0 && col <= b.col1 && row >= b.row0 && row <= b.row1
}

func (b box) isOutput(col, row int) bool {
	c, r := b.outputCell()
	return c == col && r == row
}

// layout maps every positioned node to its cell box under the viewport.
func layout(m *graph.Model, size graph.SizeFunc, surface geometry.Surface) []box {
	vp := m.Viewport()
	var out []box
	m.EachNode(func(n *graph.Node) bool {
		if n.Position == nil {
			return true
		}
		sz := size(n)
		tl := vp.ToScreen(surface, *n.Position)
		br := vp.ToScreen(surface, n.Position.Add(geometry.Point{X: sz.Width, Y: sz.Height}))
		col0, row0 := toCell(tl)
		col1 := int(math.Ceil(br.X/cellW)) - 1
		row1 := int(math.Ceil(br.Y/cellH)) - 1
		if col1 < col0+2 {
			col1 = col0 + 2
		}
		if row1 < row0+2 {
			row1 = row0 + 2
		}
		out = append(out, box{nodeID: n.ID, col0: col0, row0: row0, col1: col1, row1: row1})
		return true
	})
	return out
}

// hitKind says what a press landed on.
type hitKind int

const (
	hitCanvas hitKind = iota
	hitNode
	hitPort
)

// hitTest finds the topmost box under (col, row). Later nodes are drawn
// on top, so they win.
func hitTest(boxes []box, col, row int) (hitKind, string) {
	for i := len(boxes) - 1; i >= 0; i-- {
		b := boxes[i]
		if b.isOutput(col, row) {
			return hitPort, b.nodeID
		}
		if b.contains(col, row) {
			return hitNode, b.nodeID
		}
	}
	return hitCanvas, ""
}

// grid is a width x height character buffer with a paint per cell.
type grid struct {
	w, h   int
	runes  [][]rune
	paints [][]paint
}

func newGrid(w, h int) *grid {
	g := &grid{w: w, h: h, runes: make([][]rune, h), paints: make([][]paint, h)}
	for r := range g.runes {
		g.runes[r] = []rune(strings.Repeat(" ", w))
		g.paints[r] = make([]paint, w)
	}
	return g
}

func (g *grid) set(col, row int, ch rune, p paint) {
	if col < 0 || row < 0 || col >= g.w || row >= g.h {
		return
	}
	g.runes[row][col] = ch
	g.paints[row][col] = p
}

func (g *grid) text(col, row int, s string, p paint) {
	for i, ch := range []rune(s) {
		g.set(col+i, row, ch, p)
	}
}

func (g *grid) hline(c0, c1, row int, p paint) {
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	for c := c0; c <= c1; c++ {
		g.set(c, row, '─', p)
	}
}

func (g *grid) vline(col, r0, r1 int, p paint) {
	if r0 > r1 {
		r0, r1 = r1, r0
	}
	for r := r0; r <= r1; r++ {
		g.set(col, r, '│', p)
	}
}

// route draws an elbow from (c0,r0) to (c1,r1): across, down, across.
func (g *grid) route(c0, r0, c1, r1 int, p paint) {
	mid := (c0 + c1) / 2
	g.hline(c0, mid, r0, p)
	g.vline(mid, r0, r1, p)
	g.hline(mid, c1, r1, p)
}

func (g *grid) drawBox(b box, n *graph.Node, p paint) {
	for c := b.col0; c <= b.col1; c++ {
		g.set(c, b.row0, '─', p)
		g.set(c, b.row1, '─', p)
	}
	for r := b.row0; r <= b.row1; r++ {
		g.set(b.col0, r, '│', p)
		g.set(b.col1, r, '│', p)
	}
	g.set(b.col0, b.row0, '┌', p)
	g.set(b.col1, b.row0, '┐', p)
	g.set(b.col0, b.row1, '└', p)
	g.set(b.col1, b.row1, '┘', p)
	for r := b.row0 + 1; r < b.row1; r++ {
		for c := b.col0 + 1; c < b.col1; c++ {
			g.set(c, r, ' ', p)
		}
	}

	inner := b.col1 - b.col0 - 1
	label := n.Label
	if label == "" {
		label = n.ExternalID
	}
	g.text(b.col0+1, b.row0+1, clip(label, inner), p)
	if b.row1-b.row0 > 2 {
		g.text(b.col0+1, b.row0+2, clip(string(n.Kind), inner), p)
	}
	for i, out := range n.Outputs {
		row := b.row0 + 3 + i
		if row >= b.row1 {
			break
		}
		g.text(b.col0+1, row, clip("› "+out.Label, inner), p)
	}

	if n.Kind != graph.KindStart {
		c, r := b.inputCell()
		g.set(c, r, '▶', paintPort)
	}
	if n.Kind != graph.KindEnd {
		c, r := b.outputCell()
		g.set(c, r, '●', paintPort)
	}
}

func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// render draws the model and any in-progress connection preview.
func render(m *graph.Model, size graph.SizeFunc, surface geometry.Surface, preview *gesture.Preview, w, h int) (*grid, []box) {
	g := newGrid(w, h)
	boxes := layout(m, size, surface)
	byID := make(map[string]box, len(boxes))
	for _, b := range boxes {
		byID[b.nodeID] = b
	}

	selConn, _ := m.SelectedConnection()
	for _, c := range m.Connections() {
		from, okFrom := byID[c.SourceNodeID]
		to, okTo := byID[c.TargetNodeID]
		if !okFrom || !okTo {
			continue
		}
		p := paintEdge
		if selConn != nil && selConn.ID == c.ID {
			p = paintSelected
		}
		c0, r0 := from.outputCell()
		c1, r1 := to.inputCell()
		g.route(c0+1, r0, c1-1, r1, p)
		if c.Condition != nil && *c.Condition != "" {
			g.text((c0+c1)/2+1, (r0+r1)/2, "["+*c.Condition+"]", p)
		}
	}

	m.EachNode(func(n *graph.Node) bool {
		b, ok := byID[n.ID]
		if !ok {
			return true
		}
		p := paintPlain
		switch {
		case n.ID == m.SelectedNodeID():
			p = paintSelected
		case !n.Kind.Valid():
			p = paintInvalid
		}
		g.drawBox(b, n, p)
		return true
	})

	if preview != nil {
		vp := m.Viewport()
		c0, r0 := toCell(vp.ToScreen(surface, preview.Start))
		c1, r1 := toCell(vp.ToScreen(surface, preview.End))
		g.route(c0+1, r0, c1, r1, paintPreview)
		g.set(c1, r1, '◆', paintPreview)
	}
	return g, boxes
}

// String renders the grid with lipgloss styles, batching runs of equal
// paint.
func (g *grid) String() string {
	var b strings.Builder
	for r := 0; r < g.h; r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		start := 0
		for c := 1; c <= g.w; c++ {
			if c < g.w && g.paints[r][c] == g.paints[r][start] {
				continue
			}
			b.WriteString(paintStyles[g.paints[r][start]].Render(string(g.runes[r][start:c])))
			start = c
		}
	}
	return b.String()
}

// plain returns the grid without styling.
func (g *grid) plain() string {
	lines := make([]string, g.h)
	for r := range g.runes {
		lines[r] = string(g.runes[r])
	}
	return strings.Join(lines, "\n")
}
