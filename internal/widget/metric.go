package widget

import (
	"image/color"
	"time"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
	"github.com/tiny-dfr/tiny-dfr/internal/metrics"
	"github.com/tiny-dfr/tiny-dfr/internal/render"
)

const (
	// MetricInterval is how often metric buttons refresh.
	MetricInterval = 5 * time.Second
	// metricStale marks a metric changed slightly before the interval ends
	// so a wake-up at the deadline always redraws it.
	metricStale = 4 * time.Second
)

var (
	batteryLow      = color.RGBA{R: 0xff, G: 0x1a, B: 0x1a, A: 0xff}
	batteryMedium   = color.RGBA{R: 0xff, G: 0x80, B: 0x80, A: 0xff}
	batteryCharging = color.RGBA{G: 0xff, A: 0xff}
)

// Metric shows a live system reading.
type Metric struct {
	base
	sampler  metrics.Sampler
	lastDraw time.Time
}

// NewMetric creates a metric button. A nil sampler renders nothing.
func NewMetric(sampler metrics.Sampler, key int, now time.Time) *Metric {
	return &Metric{base: base{key: key}, sampler: sampler, lastDraw: now}
}

func (m *Metric) Kind() Kind { return KindMetric }

func (m *Metric) Render(s render.Surface, f Frame) {
	m.lastDraw = f.Now
	if m.sampler == nil {
		return
	}
	r, err := m.sampler.Sample()
	if err != nil {
		logger.Debug("Metric sample failed", "kind", m.sampler.Kind(), "error", err)
		return
	}
	drawCentered(s, f, r.String(), readingColor(r))
}

func (m *Metric) Changed(now time.Time) bool {
	return m.changed || now.Sub(m.lastDraw) > metricStale
}

func (m *Metric) NextRedraw(time.Time) (time.Time, bool) {
	return m.lastDraw.Add(MetricInterval), true
}

func readingColor(r metrics.Reading) color.Color {
	if r.Kind != metrics.Battery {
		return Foreground
	}
	switch {
	case r.Battery.Charging():
		return batteryCharging
	case r.Battery.Capacity < 20:
		return batteryLow
	case r.Battery.Capacity < 50:
		return batteryMedium
	}
	return Foreground
}
