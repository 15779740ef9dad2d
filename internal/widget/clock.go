package widget

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
	"github.com/tiny-dfr/tiny-dfr/internal/render"
)

// Clock format presets.
const (
	Format24h = "24hr"
	Format12h = "12hr"
)

// Clock shows the local time, redrawn when the minute changes.
type Clock struct {
	base
	Format string
	Locale string

	lastMinute time.Time
}

// NewClock creates a clock button. Only the POSIX locale is rendered; other
// locales fall back to it.
func NewClock(format, locale string, key int, now time.Time) *Clock {
	if locale == "" {
		locale = "POSIX"
	}
	switch strings.SplitN(locale, ".", 2)[0] {
	case "POSIX", "C", "en_US", "en_GB":
	default:
		logger.Warn("Clock locale not supported, using POSIX", "locale", locale)
	}
	return &Clock{
		base:       base{key: key},
		Format:     format,
		Locale:     locale,
		lastMinute: now.Truncate(time.Minute),
	}
}

func (c *Clock) Kind() Kind { return KindClock }

// Text formats t according to the clock's format.
func (c *Clock) Text(t time.Time) string {
	switch c.Format {
	case Format24h:
		return fmt.Sprintf("%s    %s %d %s",
			strftime.Format("%H:%M", t), strftime.Format("%a", t), t.Day(), strftime.Format("%b", t))
	case Format12h:
		hour := t.Hour() % 12
		if hour == 0 {
			hour = 12
		}
		return fmt.Sprintf("%d:%s %s    %s %d %s",
			hour, strftime.Format("%M", t), strftime.Format("%p", t),
			strftime.Format("%a", t), t.Day(), strftime.Format("%b", t))
	default:
		return strftime.Format(c.Format, t)
	}
}

func (c *Clock) Render(s render.Surface, f Frame) {
	c.lastMinute = f.Now.Truncate(time.Minute)
	drawCentered(s, f, c.Text(f.Now), Foreground)
}

func (c *Clock) Changed(now time.Time) bool {
	return c.changed || !now.Truncate(time.Minute).Equal(c.lastMinute)
}

func (c *Clock) NextRedraw(time.Time) (time.Time, bool) {
	return c.lastMinute.Add(time.Minute), true
}
