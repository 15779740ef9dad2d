package input

import (
	"sort"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"
)

// Axis is the value range of an absolute axis.
type Axis struct {
	Min, Max int32
}

// Fraction maps v into [0, 1).
func (a Axis) Fraction(v int32) float64 {
	span := float64(a.Max) - float64(a.Min) + 1
	if span <= 0 {
		return 0
	}
	f := (float64(v) - float64(a.Min)) / span
	switch {
	case f < 0:
		return 0
	case f >= 1:
		return float64(span-1) / span
	}
	return f
}

// struct input_absinfo
type absInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

const (
	iocRead      = 2
	iocDirShift  = 30
	iocSizeShift = 16
	iocTypeShift = 8
)

// evioCGAbs is EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo).
func evioCGAbs(code int) uintptr {
	return uintptr(iocRead<<iocDirShift |
		uint32(unsafe.Sizeof(absInfo{}))<<iocSizeShift |
		uint32('E')<<iocTypeShift |
		uint32(0x40+code))
}

func queryAxis(fd uintptr, code int) (Axis, error) {
	var info absInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, evioCGAbs(code), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return Axis{}, errno
	}
	return Axis{Min: info.Min, Max: info.Max}, nil
}

type slotState struct {
	active  bool
	down    bool
	up      bool
	moved   bool
	x, y    int32
	tracked int32
}

// Decoder turns multi-touch protocol B frames into contact events.
// Events are buffered until SYN_REPORT closes the frame.
type Decoder struct {
	x, y    Axis
	slot    int
	slots   map[int]*slotState
	dropped bool
}

// NewDecoder creates a decoder for a digitizer with the given axes.
func NewDecoder(x, y Axis) *Decoder {
	return &Decoder{x: x, y: y, slots: make(map[int]*slotState)}
}

func (d *Decoder) current() *slotState {
	s, ok := d.slots[d.slot]
	if !ok {
		s = &slotState{tracked: -1}
		d.slots[d.slot] = s
	}
	return s
}

// Feed consumes one raw event and returns the contact events of a
// completed frame, if ev completed one.
func (d *Decoder) Feed(ev evdev.InputEvent) []Event {
	if ev.Type == evdev.EV_SYN {
		switch ev.Code {
		case evdev.SYN_DROPPED:
			d.dropped = true
			return nil
		case evdev.SYN_REPORT:
			if d.dropped {
				d.dropped = false
				return d.releaseAll()
			}
			return d.flush()
		}
		return nil
	}
	if d.dropped || ev.Type != evdev.EV_ABS {
		return nil
	}

	switch ev.Code {
	case evdev.ABS_MT_SLOT:
		d.slot = int(ev.Value)
	case evdev.ABS_MT_TRACKING_ID:
		s := d.current()
		if ev.Value < 0 {
			switch {
			case s.down && !s.active:
				// Landed and lifted within one frame.
				s.down = false
			case s.down:
				s.down = false
				s.up = true
			case s.active:
				s.up = true
			}
			s.tracked = -1
		} else if !s.active || s.tracked != ev.Value {
			if s.active {
				// New contact in a slot without an intervening lift.
				s.up = true
			}
			s.down = true
			s.tracked = ev.Value
		}
	case evdev.ABS_MT_POSITION_X:
		s := d.current()
		s.x = ev.Value
		s.moved = true
	case evdev.ABS_MT_POSITION_Y:
		s := d.current()
		s.y = ev.Value
		s.moved = true
	}
	return nil
}

func (d *Decoder) sortedSlots() []int {
	keys := make([]int, 0, len(d.slots))
	for k := range d.slots {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (d *Decoder) event(kind Kind, slot int, s *slotState) Event {
	return Event{
		Kind: kind,
		Role: RoleDigitizer,
		Slot: slot,
		X:    d.x.Fraction(s.x),
		Y:    d.y.Fraction(s.y),
	}
}

func (d *Decoder) flush() []Event {
	var out []Event
	for _, slot := range d.sortedSlots() {
		s := d.slots[slot]
		switch {
		case s.up && s.down:
			// Lifted and landed again within one frame.
			if s.active {
				out = append(out, d.event(TouchUp, slot, s))
			}
			out = append(out, d.event(TouchDown, slot, s))
			s.active = true
		case s.up:
			out = append(out, d.event(TouchUp, slot, s))
			s.active = false
			s.tracked = -1
		case s.down:
			out = append(out, d.event(TouchDown, slot, s))
			s.active = true
		case s.moved && s.active:
			out = append(out, d.event(TouchMotion, slot, s))
		}
		s.up, s.down, s.moved = false, false, false
	}
	return out
}

// releaseAll lifts every contact after the kernel dropped events, since
// the slot state can no longer be trusted.
func (d *Decoder) releaseAll() []Event {
	var out []Event
	for _, slot := range d.sortedSlots() {
		s := d.slots[slot]
		if s.active {
			out = append(out, d.event(TouchUp, slot, s))
		}
	}
	clear(d.slots)
	return out
}
