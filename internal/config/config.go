// Package config loads the button layout and display settings using Viper.
//
// Settings come from three layers, each field independently defaulted: the
// built-in defaults, the packaged base file and the administrator override.
// A layer that fails to parse is rejected as a whole.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

const (
	// BasePath is the packaged configuration shipped with the daemon.
	BasePath = "/usr/share/tiny-dfr/config.toml"
	// OverridePath is the administrator override, watched for changes.
	OverridePath = "/etc/tiny-dfr/config.toml"

	// MaxActiveBrightness bounds ActiveBrightness; the Touch Bar backlight
	// never reports more than this.
	MaxActiveBrightness = 255

	// SoftEscWidth is the logical width from which panels lack a physical
	// Esc key and get a soft one on both layers.
	SoftEscWidth = 2170
)

var (
	// ErrNoButtons is returned when a layer resolves to zero buttons
	ErrNoButtons = errors.New("layer has no buttons")
	// ErrInvalidButton is returned for a button without a usable kind or action
	ErrInvalidButton = errors.New("invalid button")
	// ErrOverride wraps failures of the override file
	ErrOverride = errors.New("override configuration rejected")
)

//go:embed default.toml
var defaultLayers []byte

// Config represents the resolved daemon configuration
type Config struct {
	ShowButtonOutlines bool
	EnablePixelShift   bool
	FontTemplate       string
	AdaptiveBrightness bool
	ActiveBrightness   uint32

	PrimaryLayerKeys []Button
	MediaLayerKeys   []Button

	Logging LoggingConfig
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string // Override LOG_LEVEL env var
}

// Button is one entry of a layer definition. Exactly one of Text, Icon,
// Time, Battery, Memory or Processor selects the widget kind.
type Button struct {
	Icon      string `mapstructure:"Icon"`
	Svg       string `mapstructure:"Svg"` // legacy spelling of Icon
	Text      string `mapstructure:"Text"`
	Theme     string `mapstructure:"Theme"`
	Time      string `mapstructure:"Time"`
	Locale    string `mapstructure:"Locale"`
	Battery   string `mapstructure:"Battery"`
	Memory    string `mapstructure:"Memory"`
	Processor string `mapstructure:"Processor"`
	Action    string `mapstructure:"Action"`
	Stretch   int    `mapstructure:"Stretch"`

	// Key is the evdev code Action resolves to.
	Key int `mapstructure:"-"`
}

// IsClock reports whether the button renders the time.
func (b Button) IsClock() bool {
	return b.Time != ""
}

// fileConfig mirrors one configuration layer; nil means "not set here".
type fileConfig struct {
	ShowButtonOutlines *bool    `mapstructure:"ShowButtonOutlines"`
	EnablePixelShift   *bool    `mapstructure:"EnablePixelShift"`
	FontTemplate       *string  `mapstructure:"FontTemplate"`
	AdaptiveBrightness *bool    `mapstructure:"AdaptiveBrightness"`
	ActiveBrightness   *int     `mapstructure:"ActiveBrightness"`
	PrimaryLayerKeys   []Button `mapstructure:"PrimaryLayerKeys"`
	MediaLayerKeys     []Button `mapstructure:"MediaLayerKeys"`
	FnLayerKeys        []Button `mapstructure:"FnLayerKeys"`
	Logging            struct {
		LogLevel *string `mapstructure:"LogLevel"`
	} `mapstructure:"Logging"`
}

var (
	// DefaultConfig provides sensible defaults for scalar settings
	DefaultConfig = Config{
		ShowButtonOutlines: true,
		EnablePixelShift:   false,
		FontTemplate:       ":bold",
		AdaptiveBrightness: true,
		ActiveBrightness:   128,
	}
)

// Loader reads and merges configuration layers
type Loader struct {
	fs           afero.Fs
	basePath     string
	overridePath string
}

// NewLoader creates a loader reading the standard paths from fs
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{
		fs:           fs,
		basePath:     BasePath,
		overridePath: OverridePath,
	}
}

// SetPaths overrides the base and override file locations. Empty values keep
// the current path.
func (l *Loader) SetPaths(base, override string) {
	if base != "" {
		l.basePath = base
	}
	if override != "" {
		l.overridePath = override
	}
}

// OverridePath returns the path of the watched override file
func (l *Loader) OverridePath() string {
	return l.overridePath
}

// Load merges defaults, base and override for a panel of the given logical
// width. An unparsable override fails the whole load with ErrOverride.
func (l *Loader) Load(width int) (*Config, error) {
	return l.load(width, true)
}

// LoadBase is Load without the override layer.
func (l *Loader) LoadBase(width int) (*Config, error) {
	return l.load(width, false)
}

func (l *Loader) load(width int, withOverride bool) (*Config, error) {
	cfg := DefaultConfig

	defaults, err := parse(defaultLayers)
	if err != nil {
		return nil, fmt.Errorf("built-in defaults: %w", err)
	}
	cfg.merge(defaults)

	base, err := l.readFile(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("base config %s: %w", l.basePath, err)
	}
	if base != nil {
		cfg.merge(base)
	}

	if withOverride {
		override, err := l.readFile(l.overridePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrOverride, l.overridePath, err)
		}
		if override != nil {
			cfg.merge(override)
		}
	}

	if width >= SoftEscWidth {
		esc := Button{Text: "esc", Action: "Esc"}
		cfg.PrimaryLayerKeys = append([]Button{esc}, cfg.PrimaryLayerKeys...)
		cfg.MediaLayerKeys = append([]Button{esc}, cfg.MediaLayerKeys...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readFile parses path, returning nil without error when it does not exist.
func (l *Loader) readFile(path string) (*fileConfig, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debugf("Config file %s not found, skipping", path)
			return nil, nil
		}
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*fileConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	fc := &fileConfig{}
	if err := v.Unmarshal(fc); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if fc.MediaLayerKeys == nil {
		fc.MediaLayerKeys = fc.FnLayerKeys
	}
	return fc, nil
}

func (c *Config) merge(fc *fileConfig) {
	if fc.ShowButtonOutlines != nil {
		c.ShowButtonOutlines = *fc.ShowButtonOutlines
	}
	if fc.EnablePixelShift != nil {
		c.EnablePixelShift = *fc.EnablePixelShift
	}
	if fc.FontTemplate != nil {
		c.FontTemplate = *fc.FontTemplate
	}
	if fc.AdaptiveBrightness != nil {
		c.AdaptiveBrightness = *fc.AdaptiveBrightness
	}
	if fc.ActiveBrightness != nil {
		c.ActiveBrightness = clampBrightness(*fc.ActiveBrightness)
	}
	if fc.PrimaryLayerKeys != nil {
		c.PrimaryLayerKeys = append([]Button(nil), fc.PrimaryLayerKeys...)
	}
	if fc.MediaLayerKeys != nil {
		c.MediaLayerKeys = append([]Button(nil), fc.MediaLayerKeys...)
	}
	if fc.Logging.LogLevel != nil {
		c.Logging.LogLevel = *fc.Logging.LogLevel
	}
}

func clampBrightness(v int) uint32 {
	switch {
	case v < 0:
		logger.Warn("ActiveBrightness below 0, using 0", "value", v)
		return 0
	case v > MaxActiveBrightness:
		logger.Warn("ActiveBrightness above maximum, clamping", "value", v, "max", MaxActiveBrightness)
		return MaxActiveBrightness
	}
	return uint32(v)
}

func (c *Config) validate() error {
	layers := []struct {
		name    string
		buttons []Button
	}{
		{"PrimaryLayerKeys", c.PrimaryLayerKeys},
		{"MediaLayerKeys", c.MediaLayerKeys},
	}
	for _, layer := range layers {
		if len(layer.buttons) == 0 {
			return fmt.Errorf("%s: %w", layer.name, ErrNoButtons)
		}
		for i := range layer.buttons {
			if err := layer.buttons[i].resolve(); err != nil {
				return fmt.Errorf("%s[%d]: %w", layer.name, i, err)
			}
		}
	}
	return nil
}

func (b *Button) resolve() error {
	if b.Icon == "" {
		b.Icon = b.Svg
	}
	if b.kinds() != 1 {
		return fmt.Errorf("%w: exactly one of Text, Icon, Time, Battery, Memory or Processor is required", ErrInvalidButton)
	}
	code, ok := LookupKey(b.Action)
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidButton, b.Action)
	}
	b.Key = code
	if b.Stretch < 0 {
		logger.Warn("Stretch must be positive, using 1", "action", b.Action, "stretch", b.Stretch)
	}
	if b.Stretch < 1 {
		b.Stretch = 1
	}
	if b.Locale == "" && b.IsClock() {
		b.Locale = "POSIX"
	}
	return nil
}

func (b Button) kinds() int {
	n := 0
	for _, v := range []string{b.Text, b.Icon, b.Time, b.Battery, b.Memory, b.Processor} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}
