// Package geometry converts between screen space, where pointer events are
// reported, and the zoom/pan independent logical space in which node
// positions are stored.
package geometry

import "math"

// Point is a coordinate pair in either space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p * k.
func (p Point) Scale(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Size is a node's extent in logical units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Surface is the host's canvas element. Origin reports the screen-space
// top-left of the canvas, or false while the surface is not mounted yet.
type Surface interface {
	Origin() (Point, bool)
}

// SurfaceFunc adapts a function to the Surface interface.
type SurfaceFunc func() (Point, bool)

// Origin implements Surface.
func (f SurfaceFunc) Origin() (Point, bool) { return f() }

// FixedSurface is a Surface pinned at a constant screen offset.
type FixedSurface Point

// Origin implements Surface.
func (s FixedSurface) Origin() (Point, bool) { return Point(s), true }

// ToLogical maps a screen point into logical space:
//
//	logical = (screen - origin) / zoom - pan
func ToLogical(screen, origin Point, zoom float64, pan Point) Point {
	return Point{
		X: (screen.X-origin.X)/zoom - pan.X,
		Y: (screen.Y-origin.Y)/zoom - pan.Y,
	}
}

// ToScreen is the inverse of ToLogical.
func ToScreen(logical, origin Point, zoom float64, pan Point) Point {
	return Point{
		X: (logical.X+pan.X)*zoom + origin.X,
		Y: (logical.Y+pan.Y)*zoom + origin.Y,
	}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Viewport pairs the zoom factor with the pan offset.
type Viewport struct {
	Zoom float64 `json:"zoom"`
	Pan  Point   `json:"pan"`
}

// ToLogical converts a screen point using the surface's current origin.
// A missing surface yields the logical origin rather than an error, so
// callers made early in the host's lifecycle stay harmless.
func (v Viewport) ToLogical(s Surface, screen Point) Point {
	if s == nil {
		return Point{}
	}
	origin, ok := s.Origin()
	if !ok {
		return Point{}
	}
	return ToLogical(screen, origin, v.Zoom, v.Pan)
}

// ToScreen converts a logical point using the surface's current origin.
func (v Viewport) ToScreen(s Surface, logical Point) Point {
	if s == nil {
		return Point{}
	}
	origin, ok := s.Origin()
	if !ok {
		return Point{}
	}
	return ToScreen(logical, origin, v.Zoom, v.Pan)
}
