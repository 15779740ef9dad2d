package input

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ThomasT75/uinput"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

const (
	// UinputPath is the injection device node.
	UinputPath = "/dev/uinput"
	// DeviceName is how the virtual keyboard shows up to the system.
	DeviceName = "Dynamic Function Row Virtual Input Device"
)

// ErrInjectorClosed is returned by Emit after Close.
var ErrInjectorClosed = errors.New("injector closed")

// keyboard is the subset of uinput.Keyboard the injector drives. Each
// call writes the key event followed by SYN_REPORT.
type keyboard interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

// Injector synthesises key transitions on a virtual keyboard.
type Injector struct {
	mu     sync.Mutex
	kb     keyboard
	closed bool
}

// NewInjector creates the virtual keyboard at path (normally UinputPath).
func NewInjector(path string) (*Injector, error) {
	kb, err := uinput.CreateKeyboard(path, []byte(DeviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual keyboard: %w", err)
	}
	logger.Info("Virtual keyboard created", "name", DeviceName)
	return &Injector{kb: kb}, nil
}

// Emit presses or releases code. It returns once the event and its
// SYN_REPORT are written.
func (i *Injector) Emit(code int, pressed bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrInjectorClosed
	}
	logger.Debug("Injecting key", "code", code, "pressed", pressed)
	if pressed {
		return i.kb.KeyDown(code)
	}
	return i.kb.KeyUp(code)
}

// Close destroys the virtual keyboard.
func (i *Injector) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	return i.kb.Close()
}
