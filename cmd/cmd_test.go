package cmd

import (
	"bytes"
	"errors"
	"image"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiny-dfr/tiny-dfr/internal/config"
	"github.com/tiny-dfr/tiny-dfr/internal/input"
	"github.com/tiny-dfr/tiny-dfr/internal/ui"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func withFs(t *testing.T, files map[string]string) {
	t.Helper()
	mem := afero.NewMemMapFs()
	for path, data := range files {
		require.NoError(t, afero.WriteFile(mem, path, []byte(data), 0o644))
	}
	prev := fsys
	fsys = mem
	t.Cleanup(func() { fsys = prev })
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(rootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tiny-dfr "+Version)
}

func TestConfigCommandDefaults(t *testing.T) {
	withFs(t, nil)
	out, err := executeCommand(rootCmd, "config", "--config", "/etc/tiny-dfr/config.toml")
	require.NoError(t, err)
	assert.Contains(t, out, "PRIMARY LAYER")
	assert.Contains(t, out, "MEDIA LAYER")
	assert.Contains(t, out, "F12")
	assert.Contains(t, out, "brightness_low")
}

func TestConfigCommandOverride(t *testing.T) {
	withFs(t, map[string]string{
		"/tmp/override.toml": `
EnablePixelShift = true
PrimaryLayerKeys = [ { Time = "24hr", Action = "F1" } ]
`,
	})
	out, err := executeCommand(rootCmd, "config", "--config", "/tmp/override.toml", "--width", "2170")
	require.NoError(t, err)
	assert.Contains(t, out, "clock")
	assert.Contains(t, out, "24hr POSIX")
	assert.Contains(t, out, "esc", "wide strips get a soft Esc key")
}

func TestConfigCommandRejectsBrokenOverride(t *testing.T) {
	withFs(t, map[string]string{"/tmp/broken.toml": "PrimaryLayerKeys = ["})
	_, err := executeCommand(rootCmd, "config", "--config", "/tmp/broken.toml")
	assert.ErrorIs(t, err, config.ErrOverride)
}

func TestDescribeButton(t *testing.T) {
	tests := []struct {
		button  config.Button
		kind    string
		content string
	}{
		{config.Button{Text: "F1"}, "text", "F1"},
		{config.Button{Icon: "mute", Theme: "Adwaita"}, "icon", "mute (Adwaita)"},
		{config.Button{Time: "%H:%M", Locale: "C"}, "clock", "%H:%M C"},
		{config.Button{Battery: "BAT0"}, "battery", "BAT0"},
		{config.Button{Memory: "used"}, "memory", "used"},
		{config.Button{Processor: "all"}, "cpu", "all"},
		{config.Button{}, "blank", ""},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			kind, content := describeButton(tt.button)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.content, content)
		})
	}
}

func TestDevicesTable(t *testing.T) {
	out := devicesTable([]input.DeviceInfo{
		{Path: "/dev/input/event3", Name: "Apple Inc. Touch Bar Display Touchpad", Role: input.RoleDigitizer},
		{Path: "/dev/input/event1", Name: "Apple Internal Keyboard / Trackpad", Role: input.RoleInput},
		{Path: "/dev/input/event9", Name: input.PermissionDenied},
	})
	assert.Contains(t, out, "/dev/input/event3")
	assert.Contains(t, out, input.RoleDigitizer.String()+" "+ui.IconActive)
	assert.Contains(t, out, input.RoleInput.String())
	assert.NotContains(t, out, input.RoleInput.String()+" "+ui.IconActive)
	assert.Contains(t, out, input.PermissionDenied)
}

func TestConfigCommandShowsFlags(t *testing.T) {
	withFs(t, map[string]string{"/tmp/flags.toml": "ShowButtonOutlines = false\n"})
	out, err := executeCommand(rootCmd, "config", "--config", "/tmp/flags.toml")
	require.NoError(t, err)
	assert.Contains(t, out, ui.IconError+" false")
	assert.Contains(t, out, ui.IconSuccess+" true")
}

type stripDisplay struct {
	mem   []byte
	dirty int
}

func (d *stripDisplay) LogicalSize() (int, int) { return 2008, 60 }

func (d *stripDisplay) Pitch() int { return 60 * 4 }

func (d *stripDisplay) Map() ([]byte, error) { return d.mem, nil }

func (d *stripDisplay) MarkDirty([]image.Rectangle) error {
	d.dirty++
	return nil
}

func TestParkAfterWaitsForTerm(t *testing.T) {
	disp := &stripDisplay{mem: make([]byte, 60*4*2008)}
	sigs := make(chan os.Signal, 1)
	loopErr := errors.New("backlight write failed")

	done := make(chan error, 1)
	go func() { done <- parkAfter(disp, loopErr, sigs) }()

	select {
	case <-done:
		t.Fatal("returned before a termination signal")
	case <-time.After(100 * time.Millisecond):
	}

	sigs <- syscall.SIGTERM
	select {
	case err := <-done:
		assert.ErrorIs(t, err, loopErr)
	case <-time.After(2 * time.Second):
		t.Fatal("did not return after SIGTERM")
	}
	assert.Equal(t, 1, disp.dirty, "fallback painted once")
}
