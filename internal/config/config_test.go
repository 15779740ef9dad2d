package config

import (
	"testing"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}
	return NewLoader(fs)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := newTestLoader(t, nil).Load(1004)
	require.NoError(t, err)

	assert.True(t, cfg.ShowButtonOutlines)
	assert.False(t, cfg.EnablePixelShift)
	assert.True(t, cfg.AdaptiveBrightness)
	assert.Equal(t, uint32(128), cfg.ActiveBrightness)
	assert.Equal(t, ":bold", cfg.FontTemplate)

	require.Len(t, cfg.PrimaryLayerKeys, 12)
	require.Len(t, cfg.MediaLayerKeys, 12)
	assert.Equal(t, "F1", cfg.PrimaryLayerKeys[0].Text)
	assert.Equal(t, evdev.KEY_F1, cfg.PrimaryLayerKeys[0].Key)
	assert.Equal(t, 1, cfg.PrimaryLayerKeys[0].Stretch)
	assert.Equal(t, evdev.KEY_BRIGHTNESSDOWN, cfg.MediaLayerKeys[0].Key)
}

func TestOverrideMergesFieldByField(t *testing.T) {
	loader := newTestLoader(t, map[string]string{
		BasePath: `
ShowButtonOutlines = false
ActiveBrightness = 90
PrimaryLayerKeys = [ { Text = "A", Action = "F1" } ]
`,
		OverridePath: `
EnablePixelShift = true
ActiveBrightness = 200
`,
	})

	cfg, err := loader.Load(1004)
	require.NoError(t, err)

	assert.False(t, cfg.ShowButtonOutlines, "base value survives when override omits it")
	assert.True(t, cfg.EnablePixelShift)
	assert.Equal(t, uint32(200), cfg.ActiveBrightness)
	require.Len(t, cfg.PrimaryLayerKeys, 1)
	assert.Equal(t, "A", cfg.PrimaryLayerKeys[0].Text)
	assert.Len(t, cfg.MediaLayerKeys, 12)
}

func TestFnLayerKeysAlias(t *testing.T) {
	loader := newTestLoader(t, map[string]string{
		OverridePath: `FnLayerKeys = [ { Text = "mute", Action = "Mute" }, { Svg = "vol", Action = "VolumeUp" } ]`,
	})

	cfg, err := loader.Load(1004)
	require.NoError(t, err)
	require.Len(t, cfg.MediaLayerKeys, 2)
	assert.Equal(t, evdev.KEY_MUTE, cfg.MediaLayerKeys[0].Key)
	assert.Equal(t, "vol", cfg.MediaLayerKeys[1].Icon)
}

func TestSoftEscOnWidePanels(t *testing.T) {
	loader := newTestLoader(t, nil)

	narrow, err := loader.Load(SoftEscWidth - 1)
	require.NoError(t, err)
	assert.Len(t, narrow.PrimaryLayerKeys, 12)

	wide, err := loader.Load(SoftEscWidth)
	require.NoError(t, err)
	require.Len(t, wide.PrimaryLayerKeys, 13)
	require.Len(t, wide.MediaLayerKeys, 13)
	for _, layer := range [][]Button{wide.PrimaryLayerKeys, wide.MediaLayerKeys} {
		assert.Equal(t, "esc", layer[0].Text)
		assert.Equal(t, evdev.KEY_ESC, layer[0].Key)
	}
}

func TestBrokenOverride(t *testing.T) {
	loader := newTestLoader(t, map[string]string{
		OverridePath: "PrimaryLayerKeys = [ {",
	})

	_, err := loader.Load(1004)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverride)

	cfg, err := loader.LoadBase(1004)
	require.NoError(t, err)
	assert.Len(t, cfg.PrimaryLayerKeys, 12)
}

func TestUnknownActionRejected(t *testing.T) {
	loader := newTestLoader(t, map[string]string{
		OverridePath: `PrimaryLayerKeys = [ { Text = "x", Action = "NotAKey" } ]`,
	})

	_, err := loader.Load(1004)
	assert.ErrorIs(t, err, ErrInvalidButton)
}

func TestButtonNeedsExactlyOneKind(t *testing.T) {
	loader := newTestLoader(t, map[string]string{
		OverridePath: `PrimaryLayerKeys = [ { Text = "x", Icon = "y", Action = "F1" } ]`,
	})

	_, err := loader.Load(1004)
	assert.ErrorIs(t, err, ErrInvalidButton)
}

func TestClampsAndDefaults(t *testing.T) {
	loader := newTestLoader(t, map[string]string{
		OverridePath: `
ActiveBrightness = 400
PrimaryLayerKeys = [
    { Text = "a", Action = "F1", Stretch = -2 },
    { Time = "24hr", Action = "F2", Stretch = 3 },
]
`,
	})

	cfg, err := loader.Load(1004)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxActiveBrightness), cfg.ActiveBrightness)
	assert.Equal(t, 1, cfg.PrimaryLayerKeys[0].Stretch)
	assert.Equal(t, 3, cfg.PrimaryLayerKeys[1].Stretch)
	assert.Equal(t, "POSIX", cfg.PrimaryLayerKeys[1].Locale)
	assert.True(t, cfg.PrimaryLayerKeys[1].IsClock())
}

func TestValidateEmptyLayer(t *testing.T) {
	cfg := DefaultConfig
	cfg.PrimaryLayerKeys = []Button{{Text: "a", Action: "F1"}}
	assert.ErrorIs(t, cfg.validate(), ErrNoButtons)
}

func TestLookupKey(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"F1", evdev.KEY_F1, true},
		{"KEY_F24", evdev.KEY_F24, true},
		{"BrightnessUp", evdev.KEY_BRIGHTNESSUP, true},
		{"play_pause", evdev.KEY_PLAYPAUSE, true},
		{"IllumDown", evdev.KEY_KBDILLUMDOWN, true},
		{"", 0, false},
		{"Hyper", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := LookupKey(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
