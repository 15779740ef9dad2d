package render

import (
	"image"
)

// BytesPerPixel of the XRGB8888 scanout buffer.
const BytesPerPixel = 4

// PhysicalRect maps a rectangle in logical coordinates onto the scanout
// buffer, which is the logical canvas rotated a quarter turn.
func PhysicalRect(r image.Rectangle, logicalHeight int) image.Rectangle {
	return image.Rect(logicalHeight-r.Max.Y, r.Min.X, logicalHeight-r.Min.Y, r.Max.X)
}

// Blit copies the logical rectangle r of src into dst. Logical pixel (x, y)
// lands at scanout column H-1-y, row x, where H is the logical height.
func Blit(dst []byte, pitch int, src *image.RGBA, r image.Rectangle) {
	b := src.Bounds()
	r = r.Intersect(b)
	h := b.Dy()

	for ly := r.Min.Y; ly < r.Max.Y; ly++ {
		px := h - 1 - (ly - b.Min.Y)
		row := src.Pix[src.PixOffset(r.Min.X, ly):]
		for lx := r.Min.X; lx < r.Max.X; lx++ {
			off := (lx-b.Min.X)*pitch + px*BytesPerPixel
			if off < 0 || off+BytesPerPixel > len(dst) {
				continue
			}
			i := (lx - r.Min.X) * 4
			dst[off+0] = row[i+2]
			dst[off+1] = row[i+1]
			dst[off+2] = row[i+0]
			dst[off+3] = row[i+3]
		}
	}
}

// BlitAll copies the whole canvas.
func BlitAll(dst []byte, pitch int, src *image.RGBA) {
	Blit(dst, pitch, src, src.Bounds())
}
