// Package daemon runs the strip: one goroutine owns layout, touch sessions
// and the backlight, waking on input, config changes and widget deadlines.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/image/font"

	"github.com/tiny-dfr/tiny-dfr/internal/backlight"
	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/icons"
	"github.com/tiny-dfr/tiny-dfr/internal/input"
	"github.com/tiny-dfr/tiny-dfr/internal/layer"
	"github.com/tiny-dfr/tiny-dfr/internal/logger"
	"github.com/tiny-dfr/tiny-dfr/internal/metrics"
	"github.com/tiny-dfr/tiny-dfr/internal/pixelshift"
	"github.com/tiny-dfr/tiny-dfr/internal/render"
	"github.com/tiny-dfr/tiny-dfr/internal/touch"
	"github.com/tiny-dfr/tiny-dfr/internal/widget"
)

// BasePoll is the longest the loop sleeps without a reason to wake.
const BasePoll = 5 * time.Second

const (
	primaryLayer = 0
	mediaLayer   = 1
)

// ErrPanic wraps a panic recovered from the loop.
var ErrPanic = errors.New("event loop panicked")

// Display is the scanout target.
type Display interface {
	LogicalSize() (width, height int)
	Pitch() int
	Map() ([]byte, error)
	MarkDirty(rects []image.Rectangle) error
}

// Backlight is the brightness controller.
type Backlight interface {
	Activity(now time.Time)
	SetLid(closed bool, now time.Time)
	Update(now time.Time, s backlight.Settings) (bool, error)
	Current() uint32
	NextDeadline(now time.Time) (time.Time, bool)
}

// Inputs delivers decoded input events.
type Inputs interface {
	Digitizer() <-chan input.Event
	Main() <-chan input.Event
}

// ConfigLoader produces a validated configuration for a strip width.
type ConfigLoader interface {
	Load(width int) (*config.Config, error)
}

// Options wires the daemon to its devices.
type Options struct {
	Display   Display
	Backlight Backlight
	Injector  touch.Emitter
	Input     Inputs
	Config    ConfigLoader
	// Changes wakes the loop when the configuration may have changed.
	Changes <-chan struct{}
	// Initial is the configuration loaded at startup.
	Initial *config.Config
	// FixedLogLevel ignores Logging.LogLevel, as when it was set on the
	// command line.
	FixedLogLevel bool

	Icons      *icons.Loader
	NewSampler func(metrics.Kind) (metrics.Sampler, error)
	LoadFace   func(template string, size float64) (font.Face, error)
	Now        func() time.Time
}

// Daemon is the event loop state.
type Daemon struct {
	opts Options

	width, height int
	cfg           *config.Config
	layers        []*layer.Layer
	active        int
	full          bool
	reload        bool

	canvas *render.Canvas
	font   string
	router *touch.Router
	shift  *pixelshift.Manager
}

// New builds the layers and the canvas for opts.Initial.
func New(opts Options) (*Daemon, error) {
	if opts.Initial == nil {
		return nil, errors.New("no initial configuration")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoadFace == nil {
		opts.LoadFace = render.LoadFace
	}

	w, h := opts.Display.LogicalSize()
	d := &Daemon{
		opts:   opts,
		width:  w,
		height: h,
		full:   true,
		router: touch.NewRouter(opts.Injector, w, h),
	}
	now := opts.Now()
	if err := d.apply(opts.Initial, now); err != nil {
		return nil, err
	}
	return d, nil
}

// apply switches to cfg. The current state is untouched on error.
func (d *Daemon) apply(cfg *config.Config, now time.Time) error {
	env := widget.Env{Icons: d.opts.Icons, NewSampler: d.opts.NewSampler, Now: now}
	primary, err := layer.FromConfig(env, cfg.PrimaryLayerKeys)
	if err != nil {
		return fmt.Errorf("primary layer: %w", err)
	}
	media, err := layer.FromConfig(env, cfg.MediaLayerKeys)
	if err != nil {
		return fmt.Errorf("media layer: %w", err)
	}

	if d.canvas == nil || cfg.FontTemplate != d.font {
		face, err := d.opts.LoadFace(cfg.FontTemplate, render.FontSize)
		if err != nil {
			return fmt.Errorf("load font: %w", err)
		}
		if d.canvas == nil {
			d.canvas = render.NewCanvas(d.width, d.height, face)
		} else {
			d.canvas.SetFace(face)
		}
		d.font = cfg.FontTemplate
	}

	if err := d.releaseAll(); err != nil {
		return err
	}
	d.router.Reset()

	if cfg.Logging.LogLevel != "" && !d.opts.FixedLogLevel {
		logger.SetLevel(cfg.Logging.LogLevel)
	}
	if cfg.EnablePixelShift && d.shift == nil {
		d.shift = pixelshift.New(now)
	}
	d.cfg = cfg
	d.layers = []*layer.Layer{primary, media}
	d.active = primaryLayer
	d.full = true
	logger.Info("Layers ready",
		"primary", primary.Len(), "media", media.Len(),
		"outlines", cfg.ShowButtonOutlines, "pixel_shift", cfg.EnablePixelShift)
	return nil
}

// releaseAll lifts every key the current layers hold.
func (d *Daemon) releaseAll() error {
	for _, l := range d.layers {
		for _, key := range l.Release() {
			if err := d.opts.Injector.Emit(key, false); err != nil {
				return fmt.Errorf("release key %d: %w", key, err)
			}
		}
	}
	return nil
}

// Run loops until ctx is cancelled or an iteration fails. A panic inside
// the loop is returned as ErrPanic.
func (d *Daemon) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event loop panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	for ctx.Err() == nil {
		if err := d.iterate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) iterate(ctx context.Context) error {
	now := d.opts.Now()
	d.pollConfig(now)

	if err := d.wait(ctx, d.timeout(now)); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	now = d.opts.Now()
	if err := d.drain(now); err != nil {
		return err
	}
	if d.reload {
		d.pollConfig(now)
	}
	if err := d.redraw(now); err != nil {
		return err
	}
	if _, err := d.opts.Backlight.Update(now, d.settings()); err != nil {
		return fmt.Errorf("update backlight: %w", err)
	}
	return nil
}

func (d *Daemon) settings() backlight.Settings {
	return backlight.Settings{Adaptive: d.cfg.AdaptiveBrightness, Active: d.cfg.ActiveBrightness}
}

// pollConfig reloads when a change is pending. A configuration that fails
// to load is rejected as a whole.
func (d *Daemon) pollConfig(now time.Time) {
	select {
	case <-d.opts.Changes:
		d.reload = true
	default:
	}
	if !d.reload {
		return
	}
	d.reload = false

	cfg, err := d.opts.Config.Load(d.width)
	if err != nil {
		logger.Error("Config rejected, keeping the current one", "error", err)
		return
	}
	if err := d.apply(cfg, now); err != nil {
		logger.Error("Config rejected, keeping the current one", "error", err)
		return
	}
	logger.Info("Config reloaded")
}

// timeout is how long the loop may sleep. It is zero while a redraw is
// pending.
func (d *Daemon) timeout(now time.Time) time.Duration {
	var (
		shiftDue time.Time
		shiftOn  = d.cfg.EnablePixelShift && d.shift != nil
	)
	if shiftOn {
		var moved bool
		if moved, shiftDue = d.shift.Update(now); moved {
			d.full = true
		}
	}
	l := d.layers[d.active]
	if d.full || l.AnyChanged(now) {
		return 0
	}

	deadline := now.Add(BasePoll)
	earlier := func(t time.Time, ok bool) {
		if ok && t.Before(deadline) {
			deadline = t
		}
	}
	earlier(now.Truncate(time.Minute).Add(time.Minute), l.HasClock())
	earlier(shiftDue, shiftOn)
	earlier(l.NextRedraw(now))
	earlier(d.opts.Backlight.NextDeadline(now))

	return max(deadline.Sub(now), 0)
}

// wait blocks for input, a config change, the timeout or cancellation.
// The event that ended the wait is dispatched right away. A zero timeout
// returns at once and leaves pending events to drain.
func (d *Daemon) wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		return nil
	case <-d.opts.Changes:
		d.reload = true
		return nil
	case ev := <-d.opts.Input.Digitizer():
		return d.dispatch(ev, d.opts.Now())
	case ev := <-d.opts.Input.Main():
		return d.dispatch(ev, d.opts.Now())
	}
}

// drain dispatches every pending event, digitizer first.
func (d *Daemon) drain(now time.Time) error {
	for _, ch := range []<-chan input.Event{d.opts.Input.Digitizer(), d.opts.Input.Main()} {
	pending:
		for {
			select {
			case ev := <-ch:
				if err := d.dispatch(ev, now); err != nil {
					return err
				}
			default:
				break pending
			}
		}
	}
	return nil
}

func (d *Daemon) dispatch(ev input.Event, now time.Time) error {
	switch ev.Kind {
	case input.Activity:
		d.opts.Backlight.Activity(now)
	case input.Key:
		d.opts.Backlight.Activity(now)
		if ev.Code == evdev.KEY_FN {
			d.setLayer(ev.Pressed)
		}
	case input.Lid:
		d.opts.Backlight.SetLid(ev.Closed, now)
	case input.TouchDown, input.TouchMotion, input.TouchUp:
		d.opts.Backlight.Activity(now)
		return d.touch(ev)
	case input.DeviceAdded:
		logger.Info("Input device connected", "path", ev.Device, "name", ev.Name, "role", ev.Role)
	case input.DeviceRemoved:
		logger.Info("Input device disconnected", "path", ev.Device, "role", ev.Role)
		if ev.Role == input.RoleDigitizer {
			return d.liftAll()
		}
	}
	return nil
}

func (d *Daemon) setLayer(fn bool) {
	next := primaryLayer
	if fn {
		next = mediaLayer
	}
	if next != d.active {
		logger.Debug("Switching layer", "layer", next)
		d.active = next
		d.full = true
	}
}

func (d *Daemon) touch(ev input.Event) error {
	if ev.Role != input.RoleDigitizer {
		return nil
	}
	x := ev.X * float64(d.width)
	y := ev.Y * float64(d.height)
	switch ev.Kind {
	case input.TouchUp:
		// Ending a session is always honoured so no key stays held.
		return d.router.Up(d.layers, ev.Slot)
	case input.TouchDown:
		if d.opts.Backlight.Current() == 0 {
			return nil
		}
		return d.router.Down(d.layers, d.active, ev.Slot, x, y)
	case input.TouchMotion:
		if d.opts.Backlight.Current() == 0 {
			return nil
		}
		return d.router.Motion(d.layers, ev.Slot, x, y)
	}
	return nil
}

// liftAll ends every touch session, as if each contact was lifted.
func (d *Daemon) liftAll() error {
	for _, slot := range d.router.Sessions().Slots() {
		if err := d.router.Up(d.layers, slot); err != nil {
			return err
		}
	}
	return nil
}

// redraw paints the active layer if anything changed and flushes the
// touched region to the panel.
func (d *Daemon) redraw(now time.Time) error {
	l := d.layers[d.active]
	if !d.full && !l.AnyChanged(now) {
		return nil
	}
	st := layer.Style{Outlines: d.cfg.ShowButtonOutlines, PixelShift: d.cfg.EnablePixelShift}
	if d.cfg.EnablePixelShift && d.shift != nil {
		st.ShiftX, st.ShiftY = d.shift.Offset()
	}
	rects := l.Draw(d.canvas, st, d.full, now)
	d.full = false
	if len(rects) == 0 {
		return nil
	}

	mem, err := d.opts.Display.Map()
	if err != nil {
		return fmt.Errorf("map framebuffer: %w", err)
	}
	pitch := d.opts.Display.Pitch()
	img := d.canvas.Image()
	clips := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		render.Blit(mem, pitch, img, r)
		clips = append(clips, render.PhysicalRect(r, d.height))
	}
	if err := d.opts.Display.MarkDirty(clips); err != nil {
		return fmt.Errorf("flush framebuffer: %w", err)
	}
	return nil
}

// ShowFallback paints the crash image over the whole panel.
func ShowFallback(disp Display) error {
	w, h := disp.LogicalSize()
	mem, err := disp.Map()
	if err != nil {
		return err
	}
	img := render.Fallback(w, h)
	render.BlitAll(mem, disp.Pitch(), img)
	return disp.MarkDirty([]image.Rectangle{render.PhysicalRect(img.Bounds(), h)})
}
