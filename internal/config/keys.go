package config

import (
	"sort"
	"strings"

	evdev "github.com/gvalkov/golang-evdev"
)

// actionKeys maps normalised action names onto evdev key codes. Only codes
// the virtual keyboard can emit are listed.
var actionKeys = map[string]int{
	"esc":            evdev.KEY_ESC,
	"escape":         evdev.KEY_ESC,
	"f1":             evdev.KEY_F1,
	"f2":             evdev.KEY_F2,
	"f3":             evdev.KEY_F3,
	"f4":             evdev.KEY_F4,
	"f5":             evdev.KEY_F5,
	"f6":             evdev.KEY_F6,
	"f7":             evdev.KEY_F7,
	"f8":             evdev.KEY_F8,
	"f9":             evdev.KEY_F9,
	"f10":            evdev.KEY_F10,
	"f11":            evdev.KEY_F11,
	"f12":            evdev.KEY_F12,
	"f13":            evdev.KEY_F13,
	"f14":            evdev.KEY_F14,
	"f15":            evdev.KEY_F15,
	"f16":            evdev.KEY_F16,
	"f17":            evdev.KEY_F17,
	"f18":            evdev.KEY_F18,
	"f19":            evdev.KEY_F19,
	"f20":            evdev.KEY_F20,
	"f21":            evdev.KEY_F21,
	"f22":            evdev.KEY_F22,
	"f23":            evdev.KEY_F23,
	"f24":            evdev.KEY_F24,
	"brightnessdown": evdev.KEY_BRIGHTNESSDOWN,
	"brightnessup":   evdev.KEY_BRIGHTNESSUP,
	"scale":          evdev.KEY_SCALE,
	"dashboard":      evdev.KEY_DASHBOARD,
	"search":         evdev.KEY_SEARCH,
	"illumdown":      evdev.KEY_KBDILLUMDOWN,
	"kbdillumdown":   evdev.KEY_KBDILLUMDOWN,
	"illumup":        evdev.KEY_KBDILLUMUP,
	"kbdillumup":     evdev.KEY_KBDILLUMUP,
	"illumtoggle":    evdev.KEY_KBDILLUMTOGGLE,
	"kbdillumtoggle": evdev.KEY_KBDILLUMTOGGLE,
	"previoussong":   evdev.KEY_PREVIOUSSONG,
	"playpause":      evdev.KEY_PLAYPAUSE,
	"nextsong":       evdev.KEY_NEXTSONG,
	"stopcd":         evdev.KEY_STOPCD,
	"mute":           evdev.KEY_MUTE,
	"volumedown":     evdev.KEY_VOLUMEDOWN,
	"volumeup":       evdev.KEY_VOLUMEUP,
	"home":           evdev.KEY_HOME,
	"end":            evdev.KEY_END,
	"pageup":         evdev.KEY_PAGEUP,
	"pagedown":       evdev.KEY_PAGEDOWN,
	"insert":         evdev.KEY_INSERT,
	"delete":         evdev.KEY_DELETE,
	"backspace":      evdev.KEY_BACKSPACE,
	"tab":            evdev.KEY_TAB,
	"enter":          evdev.KEY_ENTER,
	"space":          evdev.KEY_SPACE,
	"print":          evdev.KEY_PRINT,
	"sysrq":          evdev.KEY_SYSRQ,
	"sleep":          evdev.KEY_SLEEP,
	"power":          evdev.KEY_POWER,
	"up":             evdev.KEY_UP,
	"down":           evdev.KEY_DOWN,
	"left":           evdev.KEY_LEFT,
	"right":          evdev.KEY_RIGHT,
}

// LookupKey resolves an action name such as "BrightnessUp", "KEY_F1" or
// "play_pause" to its evdev code. Matching ignores case and underscores.
func LookupKey(action string) (int, bool) {
	code, ok := actionKeys[normalizeAction(action)]
	return code, ok
}

// ActionNames returns the recognised action names, sorted.
func ActionNames() []string {
	names := make([]string, 0, len(actionKeys))
	for name := range actionKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeAction(action string) string {
	s := strings.ToLower(strings.TrimSpace(action))
	s = strings.TrimPrefix(s, "key_")
	return strings.ReplaceAll(s, "_", "")
}
