// Package layer lays widgets out in virtual columns across the strip,
// draws the ones that changed and maps touches back to widgets.
package layer

import (
	"errors"
	"image"
	"math"
	"time"

	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/logger"
	"github.com/tiny-dfr/tiny-dfr/internal/render"
	"github.com/tiny-dfr/tiny-dfr/internal/widget"
)

const (
	// Spacing is the gap between neighbouring buttons in pixels.
	Spacing = 16
	// ShiftBudget is the horizontal room reserved for pixel shift.
	ShiftBudget = 16
	// Radius of the button corners.
	Radius = 8

	ActiveGray  = 0.4
	OutlineGray = 0.2

	// Vertical extent of the button chrome, as a fraction of the height.
	chromeBottom = 0.15
	chromeTop    = 0.85
	// Touches outside this vertical band never hit.
	hitBottom = 0.1
	hitTop    = 0.9
)

// ErrEmpty is returned for a layer without buttons.
var ErrEmpty = errors.New("layer has no buttons")

// Canvas is what a layer draws on.
type Canvas interface {
	render.Surface
	Size() (int, int)
	FillRect(x, y, w, h, gray float64)
	FillRoundedRect(x, y, w, h, r, gray float64)
	Clear(gray float64)
}

// Item places a widget at a virtual column.
type Item struct {
	Start  int
	Widget widget.Widget
}

// Layer is an ordered row of widgets over Columns virtual columns.
type Layer struct {
	items   []Item
	columns int
}

// New lays widgets out left to right, each spanning its stretch in columns.
// Stretch values below 1 are raised to 1.
func New(widgets []widget.Widget, stretch []int) (*Layer, error) {
	if len(widgets) == 0 {
		return nil, ErrEmpty
	}
	l := &Layer{items: make([]Item, 0, len(widgets))}
	for i, w := range widgets {
		s := 1
		if i < len(stretch) {
			s = stretch[i]
		}
		if s < 1 {
			logger.Warn("Stretch value must be at least 1, setting to 1", "stretch", s)
			s = 1
		}
		l.items = append(l.items, Item{Start: l.columns, Widget: w})
		l.columns += s
	}
	return l, nil
}

// FromConfig builds a layer from button entries. Clock buttons take twice
// their configured stretch.
func FromConfig(env widget.Env, buttons []config.Button) (*Layer, error) {
	widgets := make([]widget.Widget, 0, len(buttons))
	stretch := make([]int, 0, len(buttons))
	for _, b := range buttons {
		s := b.Stretch
		if s < 1 {
			s = 1
		}
		if b.IsClock() {
			s *= 2
		}
		widgets = append(widgets, widget.FromConfig(env, b))
		stretch = append(stretch, s)
	}
	return New(widgets, stretch)
}

// Columns is the total virtual column count.
func (l *Layer) Columns() int { return l.columns }

// Len is the number of widgets.
func (l *Layer) Len() int { return len(l.items) }

// Widget returns the i-th widget.
func (l *Layer) Widget(i int) widget.Widget { return l.items[i].Widget }

// Span returns the virtual columns [start, end) of widget i.
func (l *Layer) Span(i int) (start, end int) {
	start = l.items[i].Start
	end = l.columns
	if i+1 < len(l.items) {
		end = l.items[i+1].Start
	}
	return start, end
}

// geometry returns the left edge and width of widget i before any shift,
// for a strip width reduced by budget.
func (l *Layer) geometry(i int, width, budget float64) (left, w float64) {
	v := float64(l.columns)
	vw := (width - budget - Spacing*(v-1)) / v
	start, end := l.Span(i)
	left = math.Floor(float64(start) * (vw + Spacing))
	w = vw + math.Floor(float64(end-start-1)*(vw+Spacing))
	return left, w
}

// Hit returns the widget under (x, y), or false for gaps and margins.
func (l *Layer) Hit(width, height int, x, y float64) (int, bool) {
	col := int(math.Floor(x / (float64(width) / float64(l.columns))))
	if col < 0 {
		col = 0
	}
	i := len(l.items) - 1
	for j, it := range l.items {
		if it.Start > col {
			i = j - 1
			break
		}
	}
	if i < 0 {
		return 0, false
	}
	if !l.HitSticky(width, height, x, y, i) {
		return 0, false
	}
	return i, true
}

// HitSticky reports whether (x, y) is still inside widget i.
func (l *Layer) HitSticky(width, height int, x, y float64, i int) bool {
	if i < 0 || i >= len(l.items) {
		return false
	}
	left, w := l.geometry(i, float64(width), 0)
	h := float64(height)
	return x >= left && x <= left+w && y >= hitBottom*h && y <= hitTop*h
}

// Style carries the drawing options that come from configuration.
type Style struct {
	Outlines   bool
	PixelShift bool
	ShiftX     float64
	ShiftY     float64
}

// Draw paints the widgets that changed, or all of them when full is set,
// and returns the touched rectangles in canvas coordinates.
func (l *Layer) Draw(c Canvas, st Style, full bool, now time.Time) []image.Rectangle {
	cw, ch := c.Size()
	width, height := float64(cw), float64(ch)
	bounds := image.Rect(0, 0, cw, ch)

	budget := 0.0
	if st.PixelShift {
		budget = ShiftBudget
	}
	bot := height * chromeBottom
	top := height * chromeTop

	var rects []image.Rectangle
	if full {
		c.Clear(0)
		rects = append(rects, bounds)
	}

	for i, it := range l.items {
		w := it.Widget
		if !full && !w.Changed(now) {
			continue
		}
		left, bw := l.geometry(i, width, budget)
		left += st.ShiftX + math.Floor(budget/2)

		gray := 0.0
		switch {
		case w.Active():
			gray = ActiveGray
		case st.Outlines:
			gray = OutlineGray
		}

		if !full {
			c.FillRect(left, bot-Radius, bw, top-bot+2*Radius, 0)
		}
		c.FillRoundedRect(left, bot-Radius, math.Ceil(bw), top-bot+2*Radius, Radius, gray)
		w.Render(c, widget.Frame{
			Left:   left,
			Width:  math.Ceil(bw),
			Height: height,
			YShift: st.ShiftY,
			Now:    now,
		})
		w.ClearChanged()

		if !full {
			r := image.Rect(
				int(math.Floor(left)), int(math.Floor(bot-Radius)),
				int(math.Ceil(left+bw)), int(math.Ceil(top+Radius)),
			).Intersect(bounds)
			if !r.Empty() {
				rects = append(rects, r)
			}
		}
	}
	return rects
}

// AnyChanged reports whether some widget needs drawing at now.
func (l *Layer) AnyChanged(now time.Time) bool {
	for _, it := range l.items {
		if it.Widget.Changed(now) {
			return true
		}
	}
	return false
}

// NextRedraw returns the earliest widget deadline.
func (l *Layer) NextRedraw(now time.Time) (time.Time, bool) {
	var (
		next  time.Time
		found bool
	)
	for _, it := range l.items {
		t, ok := it.Widget.NextRedraw(now)
		if !ok {
			continue
		}
		if !found || t.Before(next) {
			next, found = t, true
		}
	}
	return next, found
}

// HasClock reports whether any widget shows the time.
func (l *Layer) HasClock() bool {
	for _, it := range l.items {
		if it.Widget.Kind() == widget.KindClock {
			return true
		}
	}
	return false
}

// Release deactivates every widget and returns the keys that were held.
func (l *Layer) Release() []int {
	var keys []int
	for _, it := range l.items {
		if it.Widget.SetActive(false) {
			keys = append(keys, it.Widget.Key())
		}
	}
	return keys
}
