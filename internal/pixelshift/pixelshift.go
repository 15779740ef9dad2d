// Package pixelshift moves the whole drawing by a few pixels over time so
// static content does not burn into the panel.
package pixelshift

import "time"

const (
	// Width is the horizontal room the layout reserves for shifting.
	Width = 16
	// Height is the largest vertical offset in either direction.
	Height = 1
	// Interval between steps.
	Interval = 60 * time.Second
)

// Manager walks the offset back and forth across the budget, one pixel
// per step, and moves vertically each time it turns around.
type Manager struct {
	x, y     int
	dx       int
	yPhase   int
	next     time.Time
	interval time.Duration
}

var yCycle = []int{0, Height, 0, -Height}

// New returns a manager centred at (0, 0) whose first step is due one
// interval after now.
func New(now time.Time) *Manager {
	return &Manager{dx: 1, interval: Interval, next: now.Add(Interval)}
}

// Offset is the current translation in pixels.
func (m *Manager) Offset() (x, y float64) {
	return float64(m.x), float64(m.y)
}

// Update advances the offset if a step is due. It reports whether the
// offset changed and when the next step is due.
func (m *Manager) Update(now time.Time) (bool, time.Time) {
	if now.Before(m.next) {
		return false, m.next
	}
	m.step()
	// A long stall moves one step only.
	m.next = now.Add(m.interval)
	return true, m.next
}

func (m *Manager) step() {
	half := Width / 2
	if m.x+m.dx > half || m.x+m.dx < -half {
		m.dx = -m.dx
		m.yPhase = (m.yPhase + 1) % len(yCycle)
		m.y = yCycle[m.yPhase]
	}
	m.x += m.dx
}
