// Package input reads evdev devices, decodes touch-bar contacts and
// injects the keys buttons stand for through uinput.
package input

import "fmt"

// Kind of an input event.
type Kind int

const (
	// Activity is any user input that carries nothing else of interest.
	Activity Kind = iota
	Key
	Lid
	TouchDown
	TouchMotion
	TouchUp
	DeviceAdded
	DeviceRemoved
)

func (k Kind) String() string {
	switch k {
	case Activity:
		return "activity"
	case Key:
		return "key"
	case Lid:
		return "lid"
	case TouchDown:
		return "touch-down"
	case TouchMotion:
		return "touch-motion"
	case TouchUp:
		return "touch-up"
	case DeviceAdded:
		return "device-added"
	case DeviceRemoved:
		return "device-removed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsTouch reports whether k is a contact event.
func (k Kind) IsTouch() bool {
	return k == TouchDown || k == TouchMotion || k == TouchUp
}

// Event is one decoded input event.
type Event struct {
	Kind   Kind
	Device string // device node path
	Role   Role

	// Key
	Code    int
	Pressed bool

	// Lid
	Closed bool

	// Touch; X and Y are fractions of the axis range in [0, 1).
	Slot int
	X, Y float64

	// DeviceAdded
	Name string
}

// Role classifies a device by how its events are used.
type Role int

const (
	RoleIgnored Role = iota
	// RoleDigitizer is the strip's own touch surface.
	RoleDigitizer
	// RoleInput is every other device whose input counts as activity.
	RoleInput
)

func (r Role) String() string {
	switch r {
	case RoleDigitizer:
		return "digitizer"
	case RoleInput:
		return "input"
	}
	return "ignored"
}
