// Package backlight drives the strip's sysfs backlight from user activity,
// the lid switch and, in adaptive mode, the main panel's brightness.
package backlight

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

const (
	ClassPath = "/sys/class/backlight"

	// MaxStripBrightness caps adaptive levels.
	MaxStripBrightness = 255
	// DefaultPanelMax is assumed when the panel does not report a maximum.
	DefaultPanelMax = 509

	DimTimeout  = 15 * time.Second
	OffTimeout  = 60 * time.Second
	DimmedLevel = 1
)

var (
	// ErrNoBacklight is returned when no strip backlight device exists.
	ErrNoBacklight = errors.New("no touch bar backlight device found")
	// ErrNoPanel is returned when no panel backlight device exists.
	ErrNoPanel = errors.New("no built-in display backlight device found")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("backlight closed")
)

// Device name fragments, matched against /sys/class/backlight entries.
var (
	stripNames = []string{"display-pipe", "228600000.dsi.0", "appletb_backlight"}
	panelNames = []string{"apple-panel-bl", "gmux_backlight", "intel_backlight", "acpi_video0"}
)

// Settings are the configured brightness options.
type Settings struct {
	Adaptive bool
	Active   uint32
}

// Input is everything the brightness level depends on.
type Input struct {
	Idle      time.Duration
	LidClosed bool
	Settings  Settings
	Panel     uint32
	PanelMax  uint32
	DeviceMax uint32
}

// Level computes the strip brightness for in.
func Level(in Input) uint32 {
	var lvl uint32
	switch {
	case in.LidClosed:
		lvl = 0
	case in.Idle < DimTimeout:
		lvl = in.Settings.Active
		if in.Settings.Adaptive {
			lvl = Adaptive(in.Panel, in.PanelMax, in.Settings.Active)
		}
	case in.Idle < OffTimeout:
		lvl = DimmedLevel
	default:
		lvl = 0
	}
	return min(lvl, in.DeviceMax)
}

// Adaptive maps the panel brightness onto the strip. The result is never
// zero so an active strip never goes dark.
func Adaptive(panel, panelMax, active uint32) uint32 {
	if panelMax == 0 {
		panelMax = DefaultPanelMax
	}
	ratio := math.Min(float64(panel)/float64(panelMax), 1)
	lvl := uint32(math.Sqrt(ratio)*float64(active)) + 1
	return min(lvl, MaxStripBrightness)
}

// Controller owns the strip backlight device.
type Controller struct {
	fs         afero.Fs
	dir        string
	file       afero.File
	panelDir   string
	max        uint32
	panelMax   uint32
	current    uint32
	lastActive time.Time
	lidClosed  bool
}

// Find locates the strip and panel backlight directories below root.
// A missing panel is reported as ErrNoPanel alongside a valid strip path.
func Find(fs afero.Fs, root string) (strip, panel string, err error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", root, err)
	}
	for _, e := range entries {
		name := e.Name()
		if strip == "" && containsAny(name, stripNames) {
			strip = filepath.Join(root, name)
		}
		if panel == "" && containsAny(name, panelNames) {
			panel = filepath.Join(root, name)
		}
	}
	if strip == "" {
		return "", "", ErrNoBacklight
	}
	if panel == "" {
		return strip, "", ErrNoPanel
	}
	return strip, panel, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// New opens the backlight devices below root (normally ClassPath). The
// strip device is required; without a panel device adaptive mode falls
// back to the configured level.
func New(fs afero.Fs, root string, now time.Time) (*Controller, error) {
	strip, panel, err := Find(fs, root)
	switch {
	case errors.Is(err, ErrNoPanel):
		logger.Warn("No display backlight found, adaptive brightness disabled")
	case err != nil:
		return nil, err
	}

	c := &Controller{fs: fs, dir: strip, panelDir: panel, lastActive: now}
	if c.max, err = readAttr(fs, strip, "max_brightness"); err != nil {
		return nil, err
	}
	if c.current, err = readAttr(fs, strip, "brightness"); err != nil {
		return nil, err
	}
	// Kept open: the attribute is root-owned and privileges are dropped
	// after startup.
	if c.file, err = fs.OpenFile(filepath.Join(strip, "brightness"), os.O_WRONLY, 0); err != nil {
		return nil, fmt.Errorf("open backlight: %w", err)
	}

	c.panelMax = DefaultPanelMax
	if panel != "" {
		if m, err := readAttr(fs, panel, "max_brightness"); err == nil && m > 0 {
			c.panelMax = m
		}
	}
	logger.Info("Backlight ready", "device", strip, "panel", panel, "max", c.max, "current", c.current)
	return c, nil
}

func readAttr(fs afero.Fs, dir, attr string) (uint32, error) {
	b, err := afero.ReadFile(fs, filepath.Join(dir, attr))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", attr, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return uint32(v), nil
}

// Activity records user activity at now.
func (c *Controller) Activity(now time.Time) {
	c.lastActive = now
}

// SetLid records a lid switch toggle. Any toggle counts as activity.
func (c *Controller) SetLid(closed bool, now time.Time) {
	logger.Info("Lid switch", "closed", closed)
	c.lidClosed = closed
	c.lastActive = now
}

// Current is the last level written.
func (c *Controller) Current() uint32 { return c.current }

// Max is the device maximum.
func (c *Controller) Max() uint32 { return c.max }

// Update recomputes the level and writes it if it differs from the
// current one. It reports whether a write happened.
func (c *Controller) Update(now time.Time, s Settings) (bool, error) {
	in := Input{
		Idle:      now.Sub(c.lastActive),
		LidClosed: c.lidClosed,
		Settings:  s,
		PanelMax:  c.panelMax,
		DeviceMax: c.max,
	}
	if s.Adaptive {
		if c.panelDir == "" {
			in.Settings.Adaptive = false
		} else {
			panel, err := readAttr(c.fs, c.panelDir, "brightness")
			if err != nil {
				return false, err
			}
			in.Panel = panel
		}
	}

	lvl := Level(in)
	if lvl == c.current {
		return false, nil
	}
	if err := c.write(lvl); err != nil {
		return false, err
	}
	logger.Debug("Backlight changed", "from", c.current, "to", lvl)
	c.current = lvl
	return true, nil
}

func (c *Controller) write(v uint32) error {
	if c.file == nil {
		return ErrClosed
	}
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek backlight: %w", err)
	}
	if _, err := c.file.WriteString(strconv.FormatUint(uint64(v), 10) + "\n"); err != nil {
		return fmt.Errorf("write backlight: %w", err)
	}
	return nil
}

// Close releases the brightness attribute. Later writes fail with ErrClosed.
func (c *Controller) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// NextDeadline returns when the idle level next changes, or false once
// the strip is off or the lid is closed.
func (c *Controller) NextDeadline(now time.Time) (time.Time, bool) {
	if c.lidClosed {
		return time.Time{}, false
	}
	idle := now.Sub(c.lastActive)
	switch {
	case idle < DimTimeout:
		return c.lastActive.Add(DimTimeout), true
	case idle < OffTimeout:
		return c.lastActive.Add(OffTimeout), true
	}
	return time.Time{}, false
}
