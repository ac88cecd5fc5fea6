package gesture

import (
	"sync"

	"github.com/rendis/flowcanvas/internal/geometry"
)

// Button identifies the pointer button of a press. Touch input reports
// ButtonPrimary.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonAuxiliary Button = 1
	ButtonSecondary Button = 2
)

// PointerEvent is a raw mouse or single-touch event in screen space.
type PointerEvent struct {
	ClientX float64
	ClientY float64
	Button  Button
	Touch   bool
}

// Point returns the event's screen position.
func (e PointerEvent) Point() geometry.Point {
	return geometry.Point{X: e.ClientX, Y: e.ClientY}
}

// Document receives pointer events from the whole host window rather than
// the canvas element, so a gesture keeps tracking after the pointer leaves
// the canvas. Listen registers a move/up pair and returns the function that
// removes it.
type Document interface {
	Listen(onMove, onUp func(PointerEvent)) (release func())
}

type listener struct {
	onMove func(PointerEvent)
	onUp   func(PointerEvent)
}

// Dispatcher is the Document implementation hosts feed with window-level
// events.
type Dispatcher struct {
	mu   sync.Mutex
	subs map[uint64]*listener
	seq  uint64
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[uint64]*listener)}
}

// Listen implements Document. The returned release is idempotent.
func (d *Dispatcher) Listen(onMove, onUp func(PointerEvent)) func() {
	d.mu.Lock()
	d.seq++
	id := d.seq
	d.subs[id] = &listener{onMove: onMove, onUp: onUp}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// Move forwards a move event to every listener. It reports whether the
// host must suppress the event's default action, which is the case for
// touch moves consumed by an active gesture (page scrolling).
func (d *Dispatcher) Move(ev PointerEvent) bool {
	ls := d.snapshot()
	for _, l := range ls {
		if l.onMove != nil {
			l.onMove(ev)
		}
	}
	return ev.Touch && len(ls) > 0
}

// Up forwards a pointer-up or touch-end event to every listener.
func (d *Dispatcher) Up(ev PointerEvent) {
	for _, l := range d.snapshot() {
		if l.onUp != nil {
			l.onUp(ev)
		}
	}
}

// Listeners returns the number of registered listener pairs.
func (d *Dispatcher) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// snapshot copies the listener set so handlers may release themselves
// while being dispatched.
func (d *Dispatcher) snapshot() []*listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*listener, 0, len(d.subs))
	for _, l := range d.subs {
		out = append(out, l)
	}
	return out
}
