package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/spf13/afero"

	"github.com/tiny-dfr/tiny-dfr/internal/logger"
)

// FontSize is the point size of every label.
const FontSize = 32

// LoadFace resolves a font template to a face. The template is either a font
// file path or a fontconfig pattern such as ":bold" or "DejaVu Sans:bold".
// When nothing can be resolved the embedded Go font is used.
func LoadFace(template string, size float64) (font.Face, error) {
	return LoadFaceFS(afero.NewOsFs(), template, size)
}

// LoadFaceFS is LoadFace reading font files from fsys.
func LoadFaceFS(fsys afero.Fs, template string, size float64) (font.Face, error) {
	path := template
	if !isFontFile(template) {
		resolved, err := fcMatch(template)
		if err != nil {
			logger.Warn("Font lookup failed, using built-in font", "template", template, "error", err)
			return builtinFace(template, size)
		}
		path = resolved
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	face, err := parseFace(data, size)
	if err != nil {
		logger.Warn("Font unusable, using built-in font", "path", path, "error", err)
		return builtinFace(template, size)
	}
	logger.Debug("Loaded font", "path", path)
	return face, nil
}

func isFontFile(template string) bool {
	switch strings.ToLower(filepath.Ext(template)) {
	case ".ttf", ".otf":
		return true
	}
	return false
}

func fcMatch(pattern string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "fc-match", "-f", "%{file}", pattern).Output()
	if err != nil {
		return "", err
	}
	path := string(bytes.TrimSpace(out))
	if path == "" {
		return "", fmt.Errorf("no font matches %q", pattern)
	}
	return path, nil
}

func builtinFace(template string, size float64) (font.Face, error) {
	data := goregular.TTF
	if strings.Contains(strings.ToLower(template), "bold") {
		data = gobold.TTF
	}
	return parseFace(data, size)
}

func parseFace(data []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
