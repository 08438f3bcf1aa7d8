package render

import (
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontsOnce   sync.Once
	fontsErr    error
	regularFont *truetype.Font
	boldFont    *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if regularFont, fontsErr = truetype.Parse(goregular.TTF); fontsErr != nil {
			fontsErr = fmt.Errorf("failed to parse regular font: %w", fontsErr)
			return
		}
		if boldFont, fontsErr = truetype.Parse(gobold.TTF); fontsErr != nil {
			fontsErr = fmt.Errorf("failed to parse bold font: %w", fontsErr)
		}
	})
	return fontsErr
}

type faceKey struct {
	bold bool
	size float64
}

// face returns a cached face. Faces keep glyph caches and are not safe for
// concurrent use, so every compositor owns its own set.
func (c *Compositor) face(bold bool, size float64) (font.Face, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 16
	}
	key := faceKey{bold: bold, size: size}
	if f, ok := c.faces[key]; ok {
		return f, nil
	}
	ttf := regularFont
	if bold {
		ttf = boldFont
	}
	f := truetype.NewFace(ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	c.faces[key] = f
	return f, nil
}
