package widget

import (
	"math"

	"github.com/tiny-dfr/tiny-dfr/internal/icons"
	"github.com/tiny-dfr/tiny-dfr/internal/render"
)

// Icon shows a bitmap or vector image centred on the button.
type Icon struct {
	base
	Image *icons.Icon
}

// NewIcon creates an icon button.
func NewIcon(img *icons.Icon, key int) *Icon {
	return &Icon{base: base{key: key}, Image: img}
}

func (i *Icon) Kind() Kind { return KindIcon }

func (i *Icon) Render(s render.Surface, f Frame) {
	if i.Image == nil {
		return
	}
	x := f.Left + math.Round(f.Width/2-icons.Size/2)
	y := f.YShift + math.Round((f.Height-icons.Size)/2)

	switch {
	case i.Image.Vector != nil:
		s.DrawVector(i.Image.Vector, x, y, icons.Size)
	case i.Image.Bitmap != nil:
		s.DrawImage(i.Image.Bitmap, int(x), int(y))
	}
}
