package touch

import (
	"fmt"

	"github.com/tiny-dfr/tiny-dfr/internal/layer"
	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

// Emitter injects key transitions.
type Emitter interface {
	Emit(code int, pressed bool) error
}

// Router applies touch contacts to the widgets of a set of layers.
// Coordinates are logical and never include the pixel shift.
type Router struct {
	table  *Table
	emit   Emitter
	width  int
	height int
}

// NewRouter creates a router for a strip of the given logical size.
func NewRouter(emit Emitter, width, height int) *Router {
	return &Router{table: NewTable(), emit: emit, width: width, height: height}
}

// Sessions exposes the session table.
func (r *Router) Sessions() *Table { return r.table }

// Down starts a session on the widget of the active layer under (x, y).
// Contacts landing in a gap start nothing.
func (r *Router) Down(layers []*layer.Layer, active, slot int, x, y float64) error {
	if prev, ok := r.table.End(slot); ok {
		// The slot was reused without an up; release what it held.
		if err := r.setActive(layers, prev, false); err != nil {
			return err
		}
	}
	i, ok := layers[active].Hit(r.width, r.height, x, y)
	if !ok {
		return nil
	}
	s := Session{Layer: active, Widget: i}
	r.table.Begin(slot, s)
	logger.Debug("Touch down", "slot", slot, "layer", active, "widget", i)
	return r.setActive(layers, s, true)
}

// Motion re-checks whether the contact is still inside its widget. The
// session never moves to another widget.
func (r *Router) Motion(layers []*layer.Layer, slot int, x, y float64) error {
	s, ok := r.table.Get(slot)
	if !ok {
		return nil
	}
	l := layers[s.Layer]
	return r.setActive(layers, s, l.HitSticky(r.width, r.height, x, y, s.Widget))
}

// Up ends the session of slot. An up without a session is ignored.
func (r *Router) Up(layers []*layer.Layer, slot int) error {
	s, ok := r.table.End(slot)
	if !ok {
		return nil
	}
	logger.Debug("Touch up", "slot", slot, "layer", s.Layer, "widget", s.Widget)
	return r.setActive(layers, s, false)
}

// Reset forgets every session without emitting anything. Used when the
// layers are rebuilt and the old widgets are gone.
func (r *Router) Reset() {
	r.table.Clear()
}

func (r *Router) setActive(layers []*layer.Layer, s Session, active bool) error {
	if s.Layer < 0 || s.Layer >= len(layers) || s.Widget >= layers[s.Layer].Len() {
		return nil
	}
	w := layers[s.Layer].Widget(s.Widget)
	if !w.SetActive(active) {
		return nil
	}
	if err := r.emit.Emit(w.Key(), active); err != nil {
		return fmt.Errorf("inject key %d: %w", w.Key(), err)
	}
	return nil
}
