// Package assets embeds the static backgrounds, frames, text styles and
// templates offered by the editor panels.
package assets

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"image-editor-server/editor/scene"
)

// RefPrefix marks an image reference that names an embedded asset.
const RefPrefix = "asset:"

var ErrUnknown = errors.New("unknown asset")

//go:embed catalog.json backgrounds/*.png frames/*.png
var files embed.FS

type (
	Asset struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}

	TextStyle struct {
		Name string          `json:"name"`
		Text scene.TextProps `json:"text"`
	}

	// Template positions are fractions of the canvas size.
	Template struct {
		Name       string          `json:"name"`
		Overlay    string          `json:"overlay,omitempty"`
		Background string          `json:"background,omitempty"`
		Texts      []TemplateText  `json:"texts,omitempty"`
		Shapes     []TemplateShape `json:"shapes,omitempty"`
	}

	TemplateText struct {
		Style   string  `json:"style"`
		Content string  `json:"content"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Fill    string  `json:"fill,omitempty"`
	}

	TemplateShape struct {
		Kind   scene.Kind       `json:"type"`
		X      float64          `json:"x"`
		Y      float64          `json:"y"`
		Width  float64          `json:"width"`
		Height float64          `json:"height,omitempty"`
		Style  scene.ShapeProps `json:"style"`
	}

	Catalog struct {
		Backgrounds []Asset     `json:"backgrounds"`
		Frames      []Asset     `json:"frames"`
		TextStyles  []TextStyle `json:"text_styles"`
		Templates   []Template  `json:"templates"`
	}
)

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// Load parses the embedded catalog once.
func Load() (*Catalog, error) {
	catalogOnce.Do(func() {
		data, err := files.ReadFile("catalog.json")
		if err != nil {
			catalogErr = err
			return
		}
		var c Catalog
		if err := json.Unmarshal(data, &c); err != nil {
			catalogErr = fmt.Errorf("failed to parse asset catalog: %w", err)
			return
		}
		catalog = &c
	})
	return catalog, catalogErr
}

func (c *Catalog) asset(name string) (Asset, bool) {
	for _, list := range [][]Asset{c.Backgrounds, c.Frames} {
		for _, a := range list {
			if a.Name == name {
				return a, true
			}
		}
	}
	return Asset{}, false
}

func (c *Catalog) TextStyle(name string) (TextStyle, error) {
	for _, s := range c.TextStyles {
		if s.Name == name {
			return s, nil
		}
	}
	return TextStyle{}, fmt.Errorf("text style %q: %w", name, ErrUnknown)
}

func (c *Catalog) Template(name string) (Template, error) {
	for _, t := range c.Templates {
		if t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("template %q: %w", name, ErrUnknown)
}

// Ref is the image reference of a named asset.
func Ref(name string) string {
	return RefPrefix + name
}

// Open returns the bytes of the asset an "asset:" reference names.
func Open(ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return nil, fmt.Errorf("%q is not an asset reference: %w", ref, ErrUnknown)
	}
	c, err := Load()
	if err != nil {
		return nil, err
	}
	a, ok := c.asset(name)
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", name, ErrUnknown)
	}
	return fs.ReadFile(files, a.Path)
}
