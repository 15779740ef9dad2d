// Package icons finds and decodes button icons: PNG bitmaps scaled to a
// fixed size and SVG documents kept as vectors.
package icons

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/srwiley/oksvg"
	"go.uber.org/multierr"
	"golang.org/x/image/draw"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

// Size is the edge length icons are drawn at.
const Size = 48

// ErrNotFound is returned when no candidate path yields a usable icon.
var ErrNotFound = errors.New("icon not found")

// Icon is a decoded icon; exactly one of Bitmap and Vector is set.
type Icon struct {
	Name   string
	Path   string
	Bitmap image.Image
	Vector *oksvg.SvgIcon
}

// Loader resolves icon names against the filesystem.
type Loader struct {
	fs         afero.Fs
	dirs       []string
	themeRoots []string
}

// NewLoader returns a loader using the standard search locations.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{
		fs:         fs,
		dirs:       []string{"/etc/tiny-dfr", "/usr/share/tiny-dfr"},
		themeRoots: []string{"/usr/share/icons", "/usr/local/share/icons"},
	}
}

// Load finds name and decodes it. With a theme, freedesktop icon theme
// directories are searched (falling back to hicolor); otherwise the
// tiny-dfr directories are tried, SVG before PNG.
func (l *Loader) Load(name, theme string) (*Icon, error) {
	var candidates []string
	if theme != "" {
		candidates = l.themeCandidates(name, theme)
	} else {
		for _, dir := range l.dirs {
			candidates = append(candidates,
				path.Join(dir, name+".svg"),
				path.Join(dir, name+".png"))
		}
	}

	var errs error
	for _, p := range candidates {
		icon, err := l.loadFile(p)
		if err == nil {
			icon.Name = name
			logger.Debug("Loaded icon", "name", name, "path", p)
			return icon, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", p, err))
	}
	if errs == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, name, errs)
}

// themeCandidates lists existing files for name inside theme, preferring
// the icon size we draw at, then scalable variants, then anything else.
func (l *Loader) themeCandidates(name, theme string) []string {
	var found []string
	seen := map[string]bool{}
	add := func(paths []string) {
		sort.Strings(paths)
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				found = append(found, p)
			}
		}
	}

	for _, th := range []string{theme, "hicolor"} {
		for _, root := range l.themeRoots {
			base := path.Join(root, th)
			for _, pattern := range []string{
				fmt.Sprintf("%dx%d/*/%s.svg", Size, Size, name),
				fmt.Sprintf("%dx%d/*/%s.png", Size, Size, name),
				"scalable/*/" + name + ".svg",
				"*/*/" + name + ".svg",
				"*/*/" + name + ".png",
			} {
				matches, err := afero.Glob(l.fs, path.Join(base, pattern))
				if err != nil {
					continue
				}
				add(matches)
			}
		}
		if th == "hicolor" {
			break
		}
	}
	return found
}

func (l *Loader) loadFile(p string) (*Icon, error) {
	data, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".svg":
		vec, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
		if err != nil {
			return nil, fmt.Errorf("parse svg: %w", err)
		}
		return &Icon{Path: p, Vector: vec}, nil
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode png: %w", err)
		}
		return &Icon{Path: p, Bitmap: Scale(img, Size)}, nil
	default:
		return nil, errors.New("invalid file extension")
	}
}

// Scale resizes img to size x size unless it already has that size.
func Scale(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
