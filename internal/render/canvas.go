// Package render holds the software canvas the layers paint on, in logical
// (landscape) coordinates, and the rotated blit into the scanout buffer.
package render

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
)

// Surface is the drawing API widgets render their content with.
type Surface interface {
	// MeasureText returns the advance width and ink height of s.
	MeasureText(s string) (width, height float64)
	// DrawText draws s with its baseline at y.
	DrawText(s string, x, y float64, c color.Color)
	DrawImage(img image.Image, x, y int)
	DrawVector(icon *oksvg.SvgIcon, x, y, size float64)
}

// Canvas is a gg-backed RGBA surface in logical coordinates.
type Canvas struct {
	img  *image.RGBA
	dc   *gg.Context
	face font.Face
}

// NewCanvas allocates a black canvas of the given logical size.
func NewCanvas(width, height int, face font.Face) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := &Canvas{
		img: img,
		dc:  gg.NewContextForRGBA(img),
	}
	c.SetFace(face)
	c.Clear(0)
	return c
}

// SetFace switches the font used for text.
func (c *Canvas) SetFace(face font.Face) {
	if face == nil {
		return
	}
	c.face = face
	c.dc.SetFontFace(face)
}

// Image exposes the backing pixels.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Size returns the logical width and height.
func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Clear paints the whole canvas one grey level.
func (c *Canvas) Clear(gray float64) {
	c.dc.SetRGB(gray, gray, gray)
	c.dc.Clear()
}

// FillRect fills an axis-aligned rectangle.
func (c *Canvas) FillRect(x, y, w, h, gray float64) {
	c.dc.SetRGB(gray, gray, gray)
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.Fill()
}

// FillRoundedRect fills a rectangle with corners of radius r.
func (c *Canvas) FillRoundedRect(x, y, w, h, r, gray float64) {
	c.dc.SetRGB(gray, gray, gray)
	c.dc.DrawRoundedRectangle(x, y, w, h, r)
	c.dc.Fill()
}

func (c *Canvas) MeasureText(s string) (float64, float64) {
	w, _ := c.dc.MeasureString(s)
	return w, inkHeight(c.face)
}

func (c *Canvas) DrawText(s string, x, y float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawString(s, x, y)
}

func (c *Canvas) DrawImage(img image.Image, x, y int) {
	c.dc.DrawImage(img, x, y)
}

func (c *Canvas) DrawVector(icon *oksvg.SvgIcon, x, y, size float64) {
	b := c.img.Bounds()
	icon.SetTarget(x, y, size, size)
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), c.img, b)
	icon.Draw(rasterx.NewDasher(b.Dx(), b.Dy(), scanner), 1)
}

// inkHeight approximates the height of capital letters, which is what the
// labels are vertically centred on.
func inkHeight(face font.Face) float64 {
	if face == nil {
		return 0
	}
	m := face.Metrics()
	if m.CapHeight > 0 {
		return float64(m.CapHeight.Round())
	}
	return float64((m.Ascent - m.Descent).Round())
}
