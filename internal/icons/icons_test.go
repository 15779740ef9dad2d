package icons

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24" width="24" height="24">
<path d="M3 3h18v18H3z" fill="#fff"/>
</svg>`

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoadPrefersSVGInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/tiny-dfr/play.png", pngBytes(t, 48, 48), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/usr/share/tiny-dfr/play.svg", []byte(testSVG), 0o644))

	icon, err := NewLoader(fs).Load("play", "")
	require.NoError(t, err)
	// /etc wins over /usr/share even though /usr/share has an SVG.
	assert.Equal(t, "/etc/tiny-dfr/play.png", icon.Path)
	assert.NotNil(t, icon.Bitmap)
	assert.Nil(t, icon.Vector)
}

func TestLoadSVG(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/usr/share/tiny-dfr/mute.svg", []byte(testSVG), 0o644))

	icon, err := NewLoader(fs).Load("mute", "")
	require.NoError(t, err)
	assert.Equal(t, "mute", icon.Name)
	require.NotNil(t, icon.Vector)
	assert.Nil(t, icon.Bitmap)
}

func TestLoadScalesBitmaps(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/usr/share/tiny-dfr/big.png", pngBytes(t, 128, 96), 0o644))

	icon, err := NewLoader(fs).Load("big", "")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, Size, Size), icon.Bitmap.Bounds())
}

func TestLoadSkipsBrokenCandidates(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/tiny-dfr/x.svg", []byte("<svg"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/etc/tiny-dfr/x.png", pngBytes(t, 48, 48), 0o644))

	icon, err := NewLoader(fs).Load("x", "")
	require.NoError(t, err)
	assert.Equal(t, "/etc/tiny-dfr/x.png", icon.Path)
}

func TestLoadNotFound(t *testing.T) {
	_, err := NewLoader(afero.NewMemMapFs()).Load("nothing", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadThemed(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/usr/share/icons/Adwaita/scalable/status/audio-volume-muted.svg", []byte(testSVG), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/usr/share/icons/hicolor/48x48/apps/firefox.png", pngBytes(t, 48, 48), 0o644))

	l := NewLoader(fs)
	icon, err := l.Load("audio-volume-muted", "Adwaita")
	require.NoError(t, err)
	assert.NotNil(t, icon.Vector)

	// Falls back to hicolor.
	icon, err = l.Load("firefox", "Adwaita")
	require.NoError(t, err)
	assert.Equal(t, "/usr/share/icons/hicolor/48x48/apps/firefox.png", icon.Path)
}

func TestScaleKeepsMatchingSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	img.Set(0, 0, color.White)
	assert.Same(t, img, Scale(img, Size).(*image.RGBA))
}
