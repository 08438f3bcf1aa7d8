// Package mask turns freehand strokes into the black and white mask the
// object-removal service consumes.
package mask

import (
	"context"
	"errors"
	"fmt"
	"image"

	"image-editor-server/editor/render"
	"image-editor-server/editor/scene"
)

// ErrNoSelection means no stroke has been drawn, so there is nothing to remove.
var ErrNoSelection = errors.New("no area selected")

// Renderer is the part of the compositor the pipeline needs.
type Renderer interface {
	Render(s *scene.Scene, opts render.Options) *image.RGBA
	RenderPaths(s *scene.Scene) *image.RGBA
}

// Remover sends a composite and its mask to the object-removal service and
// returns a reference to the replacement image.
type Remover interface {
	RemoveObject(ctx context.Context, composite, mask []byte) (string, error)
}

// Build renders the strokes as a soft-edged white on black mask.
func Build(s *scene.Scene, r Renderer) (*image.RGBA, error) {
	if len(s.Paths()) == 0 {
		return nil, ErrNoSelection
	}
	return r.RenderPaths(s), nil
}

// Binarize forces every pixel with a non-zero red channel to opaque white and
// every other pixel to opaque black. img is modified in place and returned.
func Binarize(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			v := uint8(0)
			if row[i] > 0 {
				v = 255
			}
			row[i], row[i+1], row[i+2], row[i+3] = v, v, v, 255
		}
	}
	return img
}

// BuildHard is Build followed by Binarize.
func BuildHard(s *scene.Scene, r Renderer) (*image.RGBA, error) {
	soft, err := Build(s, r)
	if err != nil {
		return nil, err
	}
	return Binarize(soft), nil
}

// Payload is the two-part body of an object-removal request, PNG encoded.
type Payload struct {
	Composite []byte
	Mask      []byte
}

// Prepare builds the hard mask and the composite without strokes. The scene
// is only read.
func Prepare(s *scene.Scene, r Renderer) (Payload, error) {
	hard, err := BuildHard(s, r)
	if err != nil {
		return Payload{}, err
	}
	composite := r.Render(s, render.Options{ExcludePaths: true})

	var p Payload
	if p.Composite, err = render.Encode(composite, render.PNG, 0); err != nil {
		return Payload{}, fmt.Errorf("failed to encode composite: %w", err)
	}
	if p.Mask, err = render.Encode(hard, render.PNG, 0); err != nil {
		return Payload{}, fmt.Errorf("failed to encode mask: %w", err)
	}
	return p, nil
}

// ClearStrokes removes every path from the scene and reports how many there were.
func ClearStrokes(s *scene.Scene) int {
	return len(s.RemoveWhere(func(o *scene.Object) bool {
		return o.Kind == scene.KindPath
	}))
}
