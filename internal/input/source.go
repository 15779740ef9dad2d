package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	evdev "github.com/gvalkov/golang-evdev"
	"go.uber.org/multierr"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

const (
	// DefaultDir holds the evdev nodes.
	DefaultDir = "/dev/input"

	digitizerMarker = " Touch Bar"

	// New nodes appear before udev fixes their permissions.
	openAttempts = 5
	openBackoff  = 200 * time.Millisecond

	channelSize = 256

	// PermissionDenied names devices List could not open.
	PermissionDenied = "(permission denied)"
)

// ErrSourceClosed is returned when starting a closed source.
var ErrSourceClosed = errors.New("input source closed")

// reader is the part of an evdev device the source needs.
type reader interface {
	Read() ([]evdev.InputEvent, error)
	Close() error
}

// DeviceInfo describes an opened device.
type DeviceInfo struct {
	Path string
	Name string
	Role Role
}

type device struct {
	DeviceInfo
	r       reader
	decoder *Decoder
}

type opener func(path string) (*device, error)

// Source reads every evdev device in a directory. Events from the strip's
// digitizer and from everything else arrive on separate channels so the
// loop can drain the digitizer first.
type Source struct {
	dir  string
	open opener

	digitizer chan Event
	main      chan Event

	mu      sync.Mutex
	devices map[string]*device
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup // watcher and hotplug goroutines
}

// NewSource creates a source for dir (normally DefaultDir).
func NewSource(dir string) *Source {
	return newSource(dir, openDevice)
}

func newSource(dir string, open opener) *Source {
	return &Source{
		dir:       dir,
		open:      open,
		digitizer: make(chan Event, channelSize),
		main:      make(chan Event, channelSize),
		devices:   make(map[string]*device),
	}
}

// Digitizer delivers contact events from the strip.
func (s *Source) Digitizer() <-chan Event { return s.digitizer }

// Main delivers every other event, including hotplug notices.
func (s *Source) Main() <-chan Event { return s.main }

// Start opens the devices present now and watches for new ones. Devices
// that cannot be opened are skipped with a warning.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create input watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.watcher = w

	paths, err := filepath.Glob(filepath.Join(s.dir, "event*"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := s.add(p, false); err != nil {
			logger.Warn("Skipping input device", "path", p, "error", err)
		}
	}

	s.wg.Add(1)
	go s.watch()

	logger.Info("Input source started", "dir", s.dir, "devices", len(s.Devices()))
	return nil
}

// Devices lists the opened devices sorted by path.
func (s *Source) Devices() []DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceInfo, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.DeviceInfo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Close stops every reader and the hotplug watcher.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	for path, d := range s.devices {
		if cerr := d.r.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", path, cerr))
		}
	}
	clear(s.devices)
	w := s.watcher
	s.mu.Unlock()

	if w != nil {
		err = multierr.Append(err, w.Close())
	}
	s.wg.Wait()
	return err
}

func (s *Source) add(path string, announce bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	if _, ok := s.devices[path]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	d, err := s.open(path)
	if err != nil {
		return err
	}
	if d.Role == RoleIgnored {
		logger.Debug("Ignoring input device", "path", path, "name", d.Name)
		return d.r.Close()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return d.r.Close()
	}
	s.devices[path] = d
	s.mu.Unlock()

	go s.read(d)
	logger.Info("Input device added", "path", path, "name", d.Name, "role", d.Role)
	if announce {
		s.send(s.main, Event{Kind: DeviceAdded, Device: path, Role: d.Role, Name: d.Name})
	}
	return nil
}

// remove forgets path and reports whether it was known.
func (s *Source) remove(path string) bool {
	s.mu.Lock()
	d, ok := s.devices[path]
	if ok {
		delete(s.devices, path)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	_ = d.r.Close()
	logger.Info("Input device removed", "path", path, "name", d.Name)
	s.send(s.main, Event{Kind: DeviceRemoved, Device: path, Role: d.Role, Name: d.Name})
	return true
}

func (s *Source) send(ch chan Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// read runs until the device fails or the source is closed. It is not
// waited for: evdev leaves descriptors in blocking mode, so a pending Read
// only returns with the next event.
func (s *Source) read(d *device) {
	log := logger.With("path", d.Path, "role", d.Role)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Input reader panic", "panic", r)
		}
	}()

	out := s.main
	if d.Role == RoleDigitizer {
		out = s.digitizer
	}
	var frame frameState
	for {
		events, err := d.r.Read()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			log.Warn("Input device read failed", "error", err)
			s.remove(d.Path)
			return
		}
		for _, raw := range events {
			for _, ev := range decode(d, &frame, raw) {
				ev.Device = d.Path
				if !s.send(out, ev) {
					return
				}
			}
		}
	}
}

// watch follows node creation and removal in the input directory.
func (s *Source) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create):
				s.wg.Add(1)
				go s.addWithRetry(ev.Name)
			case ev.Has(fsnotify.Remove):
				s.remove(ev.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Input watcher error", "error", err)
		}
	}
}

func (s *Source) addWithRetry(path string) {
	defer s.wg.Done()
	var err error
	for i := 0; i < openAttempts; i++ {
		if err = s.add(path, true); err == nil || errors.Is(err, ErrSourceClosed) {
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(openBackoff):
		}
	}
	logger.Warn("Hotplugged input device unavailable", "path", path, "error", err)
}

// frameState accumulates non-contact input between SYN_REPORTs.
type frameState struct {
	activity bool
}

// decode maps one raw event of d to zero or more events.
func decode(d *device, f *frameState, raw evdev.InputEvent) []Event {
	if d.decoder != nil {
		return d.decoder.Feed(raw)
	}
	switch raw.Type {
	case evdev.EV_KEY:
		if raw.Value == 2 {
			// Autorepeat.
			f.activity = true
			return nil
		}
		return []Event{{Kind: Key, Role: d.Role, Code: int(raw.Code), Pressed: raw.Value == 1}}
	case evdev.EV_SW:
		if raw.Code == evdev.SW_LID {
			return []Event{{Kind: Lid, Role: d.Role, Closed: raw.Value != 0}}
		}
	case evdev.EV_REL, evdev.EV_ABS:
		f.activity = true
	case evdev.EV_SYN:
		if raw.Code == evdev.SYN_REPORT && f.activity {
			f.activity = false
			return []Event{{Kind: Activity, Role: d.Role}}
		}
	}
	return nil
}

// evdevReader adapts an evdev device to reader.
type evdevReader struct {
	dev *evdev.InputDevice
}

func (r evdevReader) Read() ([]evdev.InputEvent, error) { return r.dev.Read() }
func (r evdevReader) Close() error                      { return r.dev.File.Close() }

func openDevice(path string) (*device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &device{
		DeviceInfo: DeviceInfo{Path: path, Name: dev.Name, Role: Classify(dev.Name, dev.CapabilitiesFlat)},
		r:          evdevReader{dev: dev},
	}
	if d.Role != RoleDigitizer {
		return d, nil
	}

	var x, y Axis
	var xErr, yErr error
	// Control runs the ioctls on the raw fd. The descriptor is already
	// blocking since evdev.Open called Fd, so Close does not interrupt a
	// pending Read either way.
	rc, err := dev.File.SyscallConn()
	if err == nil {
		err = rc.Control(func(fd uintptr) {
			x, xErr = queryAxis(fd, evdev.ABS_MT_POSITION_X)
			y, yErr = queryAxis(fd, evdev.ABS_MT_POSITION_Y)
		})
	}
	if err = multierr.Combine(err, xErr, yErr); err != nil {
		_ = dev.File.Close()
		return nil, fmt.Errorf("query axes of %s: %w", path, err)
	}
	d.decoder = NewDecoder(x, y)
	return d, nil
}

// Classify decides the role of a device from its name and capabilities.
func Classify(name string, caps map[int][]int) Role {
	if name == DeviceName {
		return RoleIgnored
	}
	if strings.Contains(name, digitizerMarker) && hasCode(caps, evdev.EV_ABS, evdev.ABS_MT_POSITION_X) {
		return RoleDigitizer
	}
	for _, t := range []int{evdev.EV_KEY, evdev.EV_REL, evdev.EV_ABS, evdev.EV_SW} {
		if len(caps[t]) > 0 {
			return RoleInput
		}
	}
	return RoleIgnored
}

func hasCode(caps map[int][]int, typ, code int) bool {
	for _, c := range caps[typ] {
		if c == code {
			return true
		}
	}
	return false
}

// List opens every device in dir once to report its role.
func List(dir string) ([]DeviceInfo, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "event*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		dev, err := evdev.Open(p)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				out = append(out, DeviceInfo{Path: p, Name: PermissionDenied})
				continue
			}
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		out = append(out, DeviceInfo{Path: p, Name: dev.Name, Role: Classify(dev.Name, dev.CapabilitiesFlat)})
		_ = dev.File.Close()
	}
	return out, nil
}
