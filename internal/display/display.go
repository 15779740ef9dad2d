// Package display drives the Touch Bar panel through DRM/KMS atomic
// modesetting and a single CPU-mapped dumb buffer.
package display

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

const (
	// DevicePattern matches the DRM primary nodes tried by Open.
	DevicePattern = "/dev/dri/card*"

	// scanWidth is the dumb buffer width the Touch Bar controllers expect,
	// independent of the panel's reported mode width.
	scanWidth = 64

	// minAspect is the minimum height/width ratio of a Touch Bar mode.
	minAspect = 30

	bitsPerPixel = 32
	colorDepth   = 24
)

var (
	// ErrNoDevice is returned when no DRM card drives a Touch Bar panel
	ErrNoDevice = errors.New("no touch bar display found")
	// ErrNotTouchBar rejects a card whose connected panel has the wrong shape
	ErrNotTouchBar = errors.New("this does not look like a touch bar")
	// ErrClosed is returned by operations on a closed display
	ErrClosed = errors.New("display closed")
	// ErrPropertyNotFound is returned when a KMS object lacks a property
	ErrPropertyNotFound = errors.New("property not found")
)

// Mode is the panel's native mode in physical (scanout) orientation.
type Mode struct {
	Width   int // hdisplay, the short side
	Height  int // vdisplay, the long side
	Refresh int
	Name    string
}

// Display owns one DRM card, its framebuffer and the mapped dumb buffer.
type Display struct {
	mu     sync.Mutex
	path   string
	card   card
	mode   Mode
	buf    dumbBuffer
	fb     uint32
	mem    []byte
	closed bool
}

type opener func(path string) (card, error)

// Finder searches for the Touch Bar card.
type Finder struct {
	fs   afero.Fs
	open opener
}

// NewFinder returns a finder over the real /dev/dri nodes.
func NewFinder() *Finder {
	return &Finder{fs: afero.NewOsFs(), open: openFDCard}
}

// Open tries every DRM card and returns the first one driving a Touch Bar.
func Open() (*Display, error) {
	return NewFinder().Open()
}

// Candidates lists the DRM nodes Open will try, in order.
func (p *Finder) Candidates() ([]string, error) {
	paths, err := afero.Glob(p.fs, DevicePattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Open tries each candidate in lexical order. Failures of individual cards
// are collected and reported together if none succeeds.
func (p *Finder) Open() (*Display, error) {
	paths, err := p.Candidates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	var errs error
	for _, path := range paths {
		d, err := p.try(path)
		if err == nil {
			logger.Info("Touch bar display found", "card", path, "mode", d.mode.Name,
				"width", d.mode.Width, "height", d.mode.Height)
			return d, nil
		}
		logger.Debug("Skipping DRM card", "card", path, "error", err)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
	}

	if errs == nil {
		return nil, fmt.Errorf("%w: no candidates match %s", ErrNoDevice, DevicePattern)
	}
	return nil, fmt.Errorf("%w, attempted: %w", ErrNoDevice, errs)
}

func (p *Finder) try(path string) (d *Display, err error) {
	c, err := p.open(path)
	if err != nil {
		return nil, err
	}
	// Undo in reverse creation order when a later step fails.
	var cleanup []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}
		_ = c.Close()
	}()

	if err := c.SetClientCap(clientCapUniversalPlanes, 1); err != nil {
		return nil, err
	}
	if err := c.SetClientCap(clientCapAtomic, 1); err != nil {
		return nil, err
	}
	if err := c.SetMaster(); err != nil {
		return nil, err
	}

	connectors, crtcs, err := c.Resources()
	if err != nil {
		return nil, err
	}

	var con *connectorInfo
	for _, id := range connectors {
		info, err := c.Connector(id)
		if err != nil {
			logger.Debug("Connector query failed", "card", path, "connector", id, "error", err)
			continue
		}
		if info.Connected {
			con = info
			break
		}
	}
	if con == nil {
		return nil, errors.New("no connected connectors found")
	}
	if len(con.Modes) == 0 {
		return nil, errors.New("no modes found")
	}
	mode := con.Modes[0]
	if !isTouchBar(mode) {
		return nil, fmt.Errorf("%w (%dx%d)", ErrNotTouchBar, mode.Hdisplay, mode.Vdisplay)
	}
	if len(crtcs) == 0 {
		return nil, errors.New("no crtcs found")
	}
	crtc := crtcs[0]

	buf, err := c.CreateDumb(scanWidth, uint32(mode.Vdisplay), bitsPerPixel)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() error { return c.DestroyDumb(buf.Handle) })

	fb, err := c.AddFB(scanWidth, uint32(mode.Vdisplay), buf, colorDepth, bitsPerPixel)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() error { return c.RmFB(fb) })

	planes, err := c.Planes()
	if err != nil {
		return nil, err
	}
	if len(planes) == 0 {
		return nil, errors.New("no planes found")
	}
	plane := planes[0]

	blob, err := c.CreateModeBlob(mode)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() error { return c.DestroyBlob(blob) })

	req, err := modesetRequest(c, con.ID, crtc, plane, fb, blob, mode)
	if err != nil {
		return nil, err
	}
	if err := c.AtomicCommit(req, atomicAllowModeset); err != nil {
		return nil, err
	}

	return &Display{
		path: path,
		card: c,
		buf:  buf,
		fb:   fb,
		mode: Mode{
			Width:   int(mode.Hdisplay),
			Height:  int(mode.Vdisplay),
			Refresh: int(mode.Vrefresh),
			Name:    cString(mode.Name[:]),
		},
	}, nil
}

// isTouchBar accepts modes at least minAspect times taller than wide.
func isTouchBar(mode drmModeInfo) bool {
	if mode.Hdisplay == 0 {
		return false
	}
	return mode.Vdisplay/mode.Hdisplay >= minAspect
}

func modesetRequest(c card, connector, crtc, plane, fb, blob uint32, mode drmModeInfo) ([]atomicProp, error) {
	w, h := uint64(mode.Hdisplay), uint64(mode.Vdisplay)
	entries := []struct {
		obj, objType uint32
		name         string
		value        uint64
	}{
		{connector, objectConnector, "CRTC_ID", uint64(crtc)},
		{crtc, objectCRTC, "MODE_ID", uint64(blob)},
		{crtc, objectCRTC, "ACTIVE", 1},
		{plane, objectPlane, "FB_ID", uint64(fb)},
		{plane, objectPlane, "CRTC_ID", uint64(crtc)},
		{plane, objectPlane, "SRC_X", 0},
		{plane, objectPlane, "SRC_Y", 0},
		{plane, objectPlane, "SRC_W", w << 16},
		{plane, objectPlane, "SRC_H", h << 16},
		{plane, objectPlane, "CRTC_X", 0},
		{plane, objectPlane, "CRTC_Y", 0},
		{plane, objectPlane, "CRTC_W", w},
		{plane, objectPlane, "CRTC_H", h},
	}

	props := make([]atomicProp, 0, len(entries))
	for _, e := range entries {
		id, err := c.PropertyID(e.obj, e.objType, e.name)
		if err != nil {
			return nil, err
		}
		props = append(props, atomicProp{Object: e.obj, Property: id, Value: e.value})
	}
	return props, nil
}

// Path returns the DRM node backing the display.
func (d *Display) Path() string {
	return d.path
}

// Mode returns the panel mode in scanout orientation.
func (d *Display) Mode() Mode {
	return d.mode
}

// LogicalSize returns the drawing size: the long side is the width.
func (d *Display) LogicalSize() (width, height int) {
	return d.mode.Height, d.mode.Width
}

// Pitch returns the byte stride of one scanout row.
func (d *Display) Pitch() int {
	return int(d.buf.Pitch)
}

// Map returns the CPU mapping of the scanout buffer. The mapping is created
// on first use and stays valid until Close.
func (d *Display) Map() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if d.mem == nil {
		mem, err := d.card.MapDumb(d.buf)
		if err != nil {
			return nil, err
		}
		d.mem = mem
	}
	return d.mem, nil
}

// MarkDirty flushes exactly the given physical rectangles to the panel.
func (d *Display) MarkDirty(rects []image.Rectangle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if len(rects) == 0 {
		return nil
	}
	bounds := image.Rect(0, 0, scanWidth, d.mode.Height)
	clips := make([]drmClipRect, 0, len(rects))
	for _, r := range rects {
		r = r.Intersect(bounds)
		if r.Empty() {
			continue
		}
		clips = append(clips, drmClipRect{
			X1: uint16(r.Min.X),
			Y1: uint16(r.Min.Y),
			X2: uint16(r.Max.X),
			Y2: uint16(r.Max.Y),
		})
	}
	if len(clips) == 0 {
		return nil
	}
	return d.card.DirtyFB(d.fb, clips)
}

// Close releases the framebuffer, then the dumb buffer, then the card. Every
// step runs even when an earlier one fails.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs error
	if d.mem != nil {
		errs = multierr.Append(errs, d.card.Unmap(d.mem))
		d.mem = nil
	}
	errs = multierr.Append(errs, d.card.RmFB(d.fb))
	errs = multierr.Append(errs, d.card.DestroyDumb(d.buf.Handle))
	errs = multierr.Append(errs, d.card.Close())
	if errs != nil {
		logger.Warn("Display teardown incomplete", "card", d.path, "error", errs)
	}
	return errs
}
