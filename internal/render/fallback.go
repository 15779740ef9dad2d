package render

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FallbackMessage is shown on the strip after the daemon failed.
const FallbackMessage = "tiny-dfr stopped working, restart the service"

// Fallback renders the crash screen. It uses only the built-in bitmap font
// so it can be drawn when nothing else loads.
func Fallback(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	w := d.MeasureString(FallbackMessage).Round()
	m := face.Metrics()
	x := (width - w) / 2
	if x < 0 {
		x = 0
	}
	y := (height + m.Ascent.Round() - m.Descent.Round()) / 2
	d.Dot = fixed.P(x, y)
	d.DrawString(FallbackMessage)
	return img
}
