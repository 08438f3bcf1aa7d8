// Package background manages the layers below and above the scene objects:
// background color or image, and the template overlay.
package background

import (
	"math"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/mask"
	"image-editor-server/editor/scene"
)

type Saver interface {
	Save(immediate bool) error
}

type Compositor struct {
	scene *scene.Scene
	saver Saver
}

func New(s *scene.Scene, saver Saver) *Compositor {
	return &Compositor{scene: s, saver: saver}
}

// CoverFit is the uniform scale that makes a w x h image cover the canvas.
func CoverFit(canvasW, canvasH, w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	return math.Max(float64(canvasW)/float64(w), float64(canvasH)/float64(h))
}

// SetColor paints a solid background. Any background image and all strokes
// are dropped.
func (c *Compositor) SetColor(value string) {
	c.scene.SetBackgroundImage(nil)
	c.scene.SetBackgroundColor(value)
	mask.ClearStrokes(c.scene)
	c.save()
	logrus.WithField("color", value).Debug("Background color set")
}

// SetImage places an already decoded w x h image behind the objects,
// cover-fitted and anchored top-left. The background color becomes transparent.
func (c *Compositor) SetImage(src string, w, h int) {
	cw, ch := c.scene.Size()
	scale := CoverFit(cw, ch, w, h)
	c.scene.SetBackgroundImage(&scene.Layer{
		Src:    src,
		ScaleX: scale,
		ScaleY: scale,
		Width:  w,
		Height: h,
	})
	c.scene.SetBackgroundColor(scene.Transparent)
	c.save()
}

func (c *Compositor) ClearImage() {
	if c.scene.BackgroundImage() == nil {
		return
	}
	c.scene.SetBackgroundImage(nil)
	c.save()
}

// SetOverlay stretches a w x h image over the whole canvas, above every object.
func (c *Compositor) SetOverlay(src string, w, h int) {
	c.scene.SetOverlayImage(Stretch(c.scene, src, w, h))
	c.save()
}

// RemoveOverlay resets the canvas to blank: overlay, template objects and
// background all go.
func (c *Compositor) RemoveOverlay() {
	c.scene.SetOverlayImage(nil)
	c.scene.RemoveWhere(func(o *scene.Object) bool {
		return o.Tag == scene.TemplateTag
	})
	c.scene.SetBackgroundImage(nil)
	c.scene.SetBackgroundColor(scene.Transparent)
	c.save()
}

// Refit recomputes layer scales after the canvas size changed. It does not
// save; the caller owns the surrounding history step.
func (c *Compositor) Refit() {
	cw, ch := c.scene.Size()
	if bg := c.scene.BackgroundImage(); bg != nil {
		scale := CoverFit(cw, ch, bg.Width, bg.Height)
		l := *bg
		l.Left, l.Top = 0, 0
		l.ScaleX, l.ScaleY = scale, scale
		c.scene.SetBackgroundImage(&l)
	}
	if ov := c.scene.OverlayImage(); ov != nil {
		c.scene.SetOverlayImage(Stretch(c.scene, ov.Src, ov.Width, ov.Height))
	}
}

// Stretch builds an overlay layer that exactly fills the canvas.
func Stretch(s *scene.Scene, src string, w, h int) *scene.Layer {
	cw, ch := s.Size()
	l := &scene.Layer{Src: src, ScaleX: 1, ScaleY: 1, Width: w, Height: h}
	if w > 0 && h > 0 {
		l.ScaleX = float64(cw) / float64(w)
		l.ScaleY = float64(ch) / float64(h)
	}
	return l
}

func (c *Compositor) save() {
	if err := c.saver.Save(true); err != nil {
		logrus.WithError(err).Error("Failed to save history")
	}
}
