package editor

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"image-editor-server/assets"
	"image-editor-server/editor/background"
	"image-editor-server/editor/interact"
	"image-editor-server/editor/mask"
	"image-editor-server/editor/render"
	"image-editor-server/editor/scene"
)

// load decodes ref without holding the editor. A failure leaves the scene
// alone and saves nothing.
func (e *Editor) load(ctx context.Context, ref string) (image.Image, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	img, _, err := e.deps.Loader.Load(ctx, ref)
	if err != nil {
		logrus.WithError(err).WithField("session_id", e.id).Warn("Failed to load image")
		return nil, err
	}
	return img, nil
}

// SetBackgroundImage loads ref and cover-fits it behind the objects.
func (e *Editor) SetBackgroundImage(ctx context.Context, ref string) error {
	img, err := e.load(ctx, ref)
	if err != nil {
		return err
	}
	return e.do(func() error {
		e.cache.Put(ref, img)
		b := img.Bounds()
		e.background.SetImage(ref, b.Dx(), b.Dy())
		return nil
	})
}

// SetOverlay loads ref and stretches it over the canvas.
func (e *Editor) SetOverlay(ctx context.Context, ref string) error {
	img, err := e.load(ctx, ref)
	if err != nil {
		return err
	}
	return e.do(func() error {
		e.cache.Put(ref, img)
		b := img.Bounds()
		e.background.SetOverlay(ref, b.Dx(), b.Dy())
		return nil
	})
}

// ApplyTemplate adds a template's texts and shapes, tagged so RemoveOverlay
// clears them, and sets its overlay frame and background. It is one history
// step.
func (e *Editor) ApplyTemplate(ctx context.Context, catalog *assets.Catalog, name string) error {
	tmpl, err := catalog.Template(name)
	if err != nil {
		return err
	}
	var overlay image.Image
	overlayRef := ""
	if tmpl.Overlay != "" {
		overlayRef = assets.Ref(tmpl.Overlay)
		if overlay, err = e.load(ctx, overlayRef); err != nil {
			return err
		}
	}

	return e.do(func() error {
		cw, ch := e.scene.Size()
		var objs []*scene.Object
		for _, t := range tmpl.Texts {
			style, err := catalog.TextStyle(t.Style)
			if err != nil {
				return err
			}
			props := style.Text
			if t.Content != "" {
				props.Content = t.Content
			}
			if t.Fill != "" {
				props.Fill = t.Fill
			}
			o := e.controller.NewText(props, scene.TemplateTag)
			o.Left, o.Top = t.X*float64(cw), t.Y*float64(ch)
			objs = append(objs, o)
		}
		for _, s := range tmpl.Shapes {
			o, err := e.controller.NewShape(interact.ShapeSpec{
				Kind:   s.Kind,
				Left:   s.X * float64(cw),
				Top:    s.Y * float64(ch),
				Width:  s.Width * float64(cw),
				Height: s.Height * float64(ch),
				Style:  s.Style,
				Tag:    scene.TemplateTag,
			})
			if err != nil {
				return err
			}
			objs = append(objs, o)
		}

		if tmpl.Background != "" {
			e.scene.SetBackgroundImage(nil)
			e.scene.SetBackgroundColor(tmpl.Background)
		}
		if overlay != nil {
			e.cache.Put(overlayRef, overlay)
			b := overlay.Bounds()
			e.scene.SetOverlayImage(background.Stretch(e.scene, overlayRef, b.Dx(), b.Dy()))
		}
		e.scene.Add(objs...)
		logrus.WithFields(logrus.Fields{
			"session_id": e.id,
			"template":   name,
			"objects":    len(objs),
		}).Info("Template applied")
		return e.history.Save(true)
	})
}

// Export renders every visible layer and encodes it.
func (e *Editor) Export(format render.Format, quality int) ([]byte, error) {
	var img *image.RGBA
	if err := e.do(func() error {
		img = e.compositor.Render(e.scene, render.Options{})
		return nil
	}); err != nil {
		return nil, err
	}
	return render.Encode(img, format, quality)
}

// Mask returns the hard mask as PNG, or mask.ErrNoSelection.
func (e *Editor) Mask() ([]byte, error) {
	var img *image.RGBA
	if err := e.do(func() error {
		var err error
		img, err = mask.BuildHard(e.scene, e.compositor)
		return err
	}); err != nil {
		return nil, err
	}
	return render.Encode(img, render.PNG, 0)
}

// RemoveObject sends the composite and the stroke mask to the object-removal
// service and replaces the main image with the result. The scene changes only
// if every step succeeds; onDone, when set, runs with the new image reference
// inside the same turn.
func (e *Editor) RemoveObject(ctx context.Context, onDone func(ref string)) (string, error) {
	var payload mask.Payload
	if err := e.do(func() error {
		var err error
		payload, err = mask.Prepare(e.scene, e.compositor)
		return err
	}); err != nil {
		return "", err
	}

	log := logrus.WithField("session_id", e.id)
	ref, err := e.deps.Remover.RemoveObject(ctx, payload.Composite, payload.Mask)
	if err != nil {
		return "", fmt.Errorf("object removal failed: %w", err)
	}
	img, err := e.load(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to load object removal result: %w", err)
	}

	err = e.do(func() error {
		if e.main == nil {
			return ErrNoMainImage
		}
		e.cache.Put(ref, img)
		mask.ClearStrokes(e.scene)
		e.replaceMain(ref, img)
		e.controller.SetTool(interact.ToolCursor)
		if onDone != nil {
			onDone(ref)
		}
		return e.history.Save(true)
	})
	if err != nil {
		log.WithError(err).Warn("Dropping object removal result")
		return "", err
	}
	log.WithField("url", ref).Info("Object removed")
	return ref, nil
}

// replaceMain swaps the main image for a full-canvas result. Filters are
// already baked into it, so adjustments start over.
func (e *Editor) replaceMain(ref string, img image.Image) {
	b := img.Bounds()
	cw, ch := e.scene.Size()
	m := e.main
	m.Image = &scene.ImageProps{Src: ref}
	m.Left, m.Top, m.Angle = 0, 0, 0
	m.OriginX, m.OriginY = scene.OriginLeft, scene.OriginTop
	m.Width, m.Height = float64(b.Dx()), float64(b.Dy())
	m.ScaleX = float64(cw) / float64(b.Dx())
	m.ScaleY = float64(ch) / float64(b.Dy())
	m.Opacity = 1
	e.adjustments = render.DefaultAdjustments()
	e.scene.Modified(m)
}
