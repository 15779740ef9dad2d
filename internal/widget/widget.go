// Package widget implements the button contents: static text, icons, the
// clock and live metrics.
package widget

import (
	"image/color"
	"math"
	"time"

	"github.com/tiny-dfr/tiny-dfr/internal/render"
)

// Kind tells widget variants apart.
type Kind int

const (
	KindText Kind = iota
	KindIcon
	KindClock
	KindMetric
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindIcon:
		return "icon"
	case KindClock:
		return "clock"
	case KindMetric:
		return "metric"
	}
	return "unknown"
}

// Frame locates a widget on the canvas for one render pass.
type Frame struct {
	Left   float64 // left edge including pixel shift
	Width  float64 // button width, already rounded up
	Height float64 // canvas height
	YShift float64
	Now    time.Time
}

// Widget is one button's content and press state.
type Widget interface {
	Kind() Kind
	// Render draws the content; chrome is drawn by the layer.
	Render(s render.Surface, f Frame)
	// SetActive updates the pressed state and reports whether it changed.
	SetActive(active bool) bool
	Active() bool
	// Key is the evdev code injected while the widget is active.
	Key() int
	// NextRedraw returns when the widget next wants drawing, if ever.
	NextRedraw(now time.Time) (time.Time, bool)
	Changed(now time.Time) bool
	ClearChanged()
}

// Foreground is the default content colour.
var Foreground color.Color = color.White

type base struct {
	key     int
	active  bool
	changed bool
}

func (b *base) SetActive(active bool) bool {
	if b.active == active {
		return false
	}
	b.active = active
	b.changed = true
	return true
}

func (b *base) Active() bool  { return b.active }
func (b *base) Key() int      { return b.key }
func (b *base) ClearChanged() { b.changed = false }

func (b *base) NextRedraw(time.Time) (time.Time, bool) {
	return time.Time{}, false
}

func (b *base) Changed(time.Time) bool {
	return b.changed
}

// drawCentered places s in the middle of the frame.
func drawCentered(s render.Surface, f Frame, text string, c color.Color) {
	tw, th := s.MeasureText(text)
	x := f.Left + math.Round(f.Width/2-tw/2)
	y := f.YShift + math.Round(f.Height/2+th/2)
	s.DrawText(text, x, y, c)
}

// Text is a fixed label.
type Text struct {
	base
	Label string
}

// NewText creates a text button.
func NewText(label string, key int) *Text {
	return &Text{base: base{key: key}, Label: label}
}

func (t *Text) Kind() Kind { return KindText }

func (t *Text) Render(s render.Surface, f Frame) {
	drawCentered(s, f, t.Label, Foreground)
}
