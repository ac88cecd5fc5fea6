package diagram

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/rendis/flowcanvas/internal/geometry"
	"github.com/rendis/flowcanvas/internal/graph"
)

// CanvasOptions controls RenderCanvasPNG.
type CanvasOptions struct {
	// Scale multiplies logical units into pixels. Zero means 1.
	Scale float64
	// Padding is the logical margin kept around the bounding box. Zero
	// means 40.
	Padding  float64
	FontSize float64
}

const (
	portRadius = 5.0
	portMargin = 2.0
	arrowSize  = 8.0
)

var (
	colorEdge     = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	colorNodeFill = color.RGBA{R: 0xf7, G: 0xf7, B: 0xf7, A: 0xff}
	colorBorder   = color.Black
	colorSelected = color.RGBA{R: 0xf5, G: 0xb4, B: 0x00, A: 0xff}
	colorPort     = color.RGBA{R: 0x1a, G: 0x52, B: 0x76, A: 0xff}
)

// RenderCanvasPNG draws the model at its stored logical positions, the way
// the editor canvas shows it at zoom 1: node boxes with an input port on the
// left, output ports on the right, connections as arrows and conditions as
// edge labels.
func RenderCanvasPNG(model *Model, opts CanvasOptions) ([]byte, error) {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Padding <= 0 {
		opts.Padding = 40
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 12
	}

	minX, minY, maxX, maxY := bounds(model)
	minX -= opts.Padding
	minY -= opts.Padding
	maxX += opts.Padding
	maxY += opts.Padding

	width := int(math.Ceil((maxX - minX) * opts.Scale))
	height := int(math.Ceil((maxY - minY) * opts.Scale))

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.Scale(opts.Scale, opts.Scale)
	dc.Translate(-minX, -minY)

	ttf, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("diagram: parse font: %w", err)
	}
	dc.SetFontFace(truetype.NewFace(ttf, &truetype.Options{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	}))

	// Edges first so boxes are drawn on top.
	for _, e := range model.Edges {
		from, to := model.node(e.From), model.node(e.To)
		if from == nil || to == nil {
			continue
		}
		drawEdge(dc, from, to, e)
	}
	for _, n := range model.Nodes {
		drawNode(dc, n)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("diagram: encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func bounds(model *Model) (minX, minY, maxX, maxY float64) {
	if len(model.Nodes) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, n := range model.Nodes {
		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X+n.Size.Width)
		maxY = math.Max(maxY, n.Position.Y+n.Size.Height)
	}
	return minX, minY, maxX, maxY
}

// outputAnchor picks the output port the edge leaves from: the port whose
// label matches the condition, else the middle of the right edge.
func outputAnchor(n *Node, label string) geometry.Point {
	for i, out := range n.Outputs {
		if out == label && label != "" {
			return outputPortAt(n, i)
		}
	}
	return geometry.Point{X: n.Position.X + n.Size.Width + portMargin, Y: n.Position.Y + n.Size.Height/2}
}

func outputPortAt(n *Node, i int) geometry.Point {
	return geometry.Point{
		X: n.Position.X + n.Size.Width + portMargin,
		Y: n.Position.Y + headerHeight + float64(i)*outputHeight + outputHeight/2,
	}
}

func inputAnchor(n *Node) geometry.Point {
	return geometry.Point{X: n.Position.X - portMargin, Y: n.Position.Y + n.Size.Height/2}
}

func drawEdge(dc *gg.Context, from, to *Node, e Edge) {
	a := outputAnchor(from, e.Label)
	b := inputAnchor(to)

	c := colorEdge
	lw := 1.5
	if e.Selected {
		c, lw = colorSelected, 3
	}
	dc.SetColor(c)
	dc.SetLineWidth(lw)

	// Horizontal tangents at both ports, like the canvas preview.
	dx := math.Max(math.Abs(b.X-a.X)/2, 40)
	dc.MoveTo(a.X, a.Y)
	dc.CubicTo(a.X+dx, a.Y, b.X-dx, b.Y, b.X, b.Y)
	dc.Stroke()

	// Tangent at the end of the curve points along +x.
	dc.MoveTo(b.X, b.Y)
	dc.LineTo(b.X-arrowSize, b.Y-arrowSize/2)
	dc.LineTo(b.X-arrowSize, b.Y+arrowSize/2)
	dc.ClosePath()
	dc.Fill()

	if e.Label != "" {
		mx, my := (a.X+b.X)/2, (a.Y+b.Y)/2
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(e.Label, mx, my-6, 0.5, 0)
	}
}

func drawNode(dc *gg.Context, n *Node) {
	x, y, w, h := n.Position.X, n.Position.Y, n.Size.Width, n.Size.Height

	dc.SetColor(colorNodeFill)
	dc.DrawRoundedRectangle(x, y, w, h, 6)
	dc.Fill()

	border, lw := color.Color(colorBorder), 1.0
	if n.Selected {
		border, lw = colorSelected, 3
	}
	dc.SetColor(border)
	dc.SetLineWidth(lw)
	if !n.Kind.Valid() {
		dc.SetDash(4, 3)
	}
	dc.DrawRoundedRectangle(x, y, w, h, 6)
	dc.Stroke()
	dc.SetDash()

	dc.SetColor(color.Black)
	dc.DrawStringAnchored(firstLine(n.Label), x+w/2, y+18, 0.5, 0.5)
	dc.SetColor(colorEdge)
	dc.DrawStringAnchored(string(n.Kind), x+w/2, y+34, 0.5, 0.5)

	dc.SetColor(colorPort)
	if n.Kind != graph.KindStart {
		in := inputAnchor(n)
		dc.DrawCircle(in.X, in.Y, portRadius)
		dc.Fill()
	}
	if len(n.Outputs) == 0 {
		if n.Kind != graph.KindEnd {
			out := outputAnchor(n, "")
			dc.DrawCircle(out.X, out.Y, portRadius)
			dc.Fill()
		}
		return
	}
	for i, label := range n.Outputs {
		p := outputPortAt(n, i)
		dc.SetColor(colorPort)
		dc.DrawCircle(p.X, p.Y, portRadius)
		dc.Fill()
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(label, p.X-portRadius-4, p.Y, 1, 0.5)
	}
}
