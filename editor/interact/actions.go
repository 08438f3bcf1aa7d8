package interact

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/scene"
)

// DeleteSelected removes the selection and returns how many objects went.
// The main image is never removed.
func (c *Controller) DeleteSelected() int {
	var victims []*scene.Object
	for _, o := range c.selection {
		if !o.IsMainImage() {
			victims = append(victims, o)
		}
	}
	c.setSelection(nil)
	c.clearMenu()
	if len(victims) == 0 {
		return 0
	}
	n := c.scene.Remove(victims...)
	c.save(true)
	logrus.WithField("count", n).Info("Deleted objects")
	return n
}

// Duplicate clones the selection, offset down and right, and selects the
// clones.
func (c *Controller) Duplicate() ([]*scene.Object, error) {
	if len(c.selection) == 0 {
		return nil, ErrNoSelection
	}
	clones := make([]*scene.Object, 0, len(c.selection))
	for _, o := range c.selection {
		cl := o.Clone()
		cl.Left += DuplicateOffset
		cl.Top += DuplicateOffset
		clones = append(clones, cl)
	}
	c.scene.Add(clones...)
	c.setSelection(clones)
	c.clearMenu()
	c.save(true)
	return clones, nil
}

type LayerOp string

const (
	BringForward LayerOp = "bring-forward"
	SendBackward LayerOp = "send-backward"
	BringToFront LayerOp = "bring-to-front"
	SendToBack   LayerOp = "send-to-back"
)

// Reorder moves the active object in the z-order.
func (c *Controller) Reorder(op LayerOp) error {
	o := c.Active()
	if o == nil {
		return ErrNoSelection
	}
	switch op {
	case BringForward:
		c.scene.BringForward(o)
	case SendBackward:
		c.scene.SendBackward(o)
	case BringToFront:
		c.scene.BringToFront(o)
	case SendToBack:
		c.scene.SendToBack(o)
	default:
		return fmt.Errorf("%w %q", ErrBadLayerOp, op)
	}
	c.clearMenu()
	c.save(true)
	return nil
}

// Transform sets any of the given fields on an object. Nil fields are left alone.
type Transform struct {
	Left   *float64 `json:"left,omitempty"`
	Top    *float64 `json:"top,omitempty"`
	ScaleX *float64 `json:"scaleX,omitempty"`
	ScaleY *float64 `json:"scaleY,omitempty"`
	Angle  *float64 `json:"angle,omitempty"`
}

func (c *Controller) Transform(id string, t Transform) (*scene.Object, error) {
	o, err := c.scene.FindByID(id)
	if err != nil {
		return nil, err
	}
	if t.Left != nil {
		o.Left = *t.Left
	}
	if t.Top != nil {
		o.Top = *t.Top
	}
	if t.ScaleX != nil && *t.ScaleX > 0 {
		o.ScaleX = *t.ScaleX
	}
	if t.ScaleY != nil && *t.ScaleY > 0 {
		o.ScaleY = *t.ScaleY
	}
	if t.Angle != nil {
		o.Angle = *t.Angle
	}
	c.scene.Modified(o)
	c.save(true)
	return o, nil
}

// AddText places a text object centered on the canvas and selects it.
func (c *Controller) AddText(props scene.TextProps, tag string) *scene.Object {
	o := c.NewText(props, tag)
	c.scene.Add(o)
	c.selectNew(o)
	c.save(true)
	return o
}

// NewText builds a text object centered on the canvas without adding it.
func (c *Controller) NewText(props scene.TextProps, tag string) *scene.Object {
	if props.FontSize <= 0 {
		props.FontSize = 32
	}
	if props.Fill == "" {
		props.Fill = "#000000"
	}
	w, h := c.measurer.MeasureText(&props)
	cw, ch := c.scene.Size()
	return &scene.Object{
		ID:      scene.NewID(),
		Kind:    scene.KindText,
		Tag:     tag,
		Left:    float64(cw) / 2,
		Top:     float64(ch) / 2,
		OriginX: scene.OriginCenter,
		OriginY: scene.OriginCenter,
		ScaleX:  1,
		ScaleY:  1,
		Opacity: 1,
		Width:   w,
		Height:  h,
		Text:    &props,
	}
}

// ShapeSpec describes a new rect or circle. Zero style fields take the
// configured defaults.
type ShapeSpec struct {
	Kind   scene.Kind       `json:"type"`
	Left   float64          `json:"left"`
	Top    float64          `json:"top"`
	Width  float64          `json:"width"`
	Height float64          `json:"height"`
	Style  scene.ShapeProps `json:"style"`
	Tag    string           `json:"tag,omitempty"`
}

func (c *Controller) AddShape(spec ShapeSpec) (*scene.Object, error) {
	o, err := c.NewShape(spec)
	if err != nil {
		return nil, err
	}
	c.scene.Add(o)
	c.selectNew(o)
	c.save(true)
	return o, nil
}

// NewShape builds a shape with the default style merged in, without adding it.
func (c *Controller) NewShape(spec ShapeSpec) (*scene.Object, error) {
	if spec.Kind != scene.KindRect && spec.Kind != scene.KindCircle {
		return nil, fmt.Errorf("%w %q", ErrBadShape, spec.Kind)
	}
	style := mergeStyle(spec.Style, c.cfg.ShapeDefaults, DefaultShapeStyle)
	if spec.Width <= 0 {
		spec.Width = 100
	}
	if spec.Height <= 0 {
		spec.Height = spec.Width
	}
	if spec.Kind == scene.KindCircle {
		if style.Radius <= 0 {
			style.Radius = spec.Width / 2
		}
		spec.Width, spec.Height = style.Radius*2, style.Radius*2
	}
	return &scene.Object{
		ID:      scene.NewID(),
		Kind:    spec.Kind,
		Tag:     spec.Tag,
		Left:    spec.Left,
		Top:     spec.Top,
		OriginX: scene.OriginLeft,
		OriginY: scene.OriginTop,
		ScaleX:  1,
		ScaleY:  1,
		Opacity: 1,
		Width:   spec.Width,
		Height:  spec.Height,
		Shape:   &style,
	}, nil
}

func (c *Controller) selectNew(o *scene.Object) {
	if o.Selectable {
		c.setSelection([]*scene.Object{o})
	}
}

func mergeStyle(layers ...scene.ShapeProps) scene.ShapeProps {
	var out scene.ShapeProps
	for _, l := range layers {
		if out.Fill == "" {
			out.Fill = l.Fill
		}
		if out.Stroke == "" {
			out.Stroke = l.Stroke
		}
		if out.StrokeWidth == 0 {
			out.StrokeWidth = l.StrokeWidth
		}
		if out.Radius == 0 {
			out.Radius = l.Radius
		}
	}
	return out
}

// BeginTextEdit enters inline editing of a text object.
func (c *Controller) BeginTextEdit(id string) error {
	o, err := c.scene.FindByID(id)
	if err != nil {
		return err
	}
	if o.Kind != scene.KindText {
		return ErrNotText
	}
	c.editing = o
	c.setSelection([]*scene.Object{o})
	return nil
}

func (c *Controller) Editing() *scene.Object {
	return c.editing
}

// CommitTextEdit replaces the content of the edited text and leaves editing.
func (c *Controller) CommitTextEdit(content string) (*scene.Object, error) {
	o := c.editing
	if o == nil {
		return nil, ErrNotText
	}
	c.editing = nil
	if o.Text.Content == content {
		return o, nil
	}
	o.Text.Content = content
	o.Width, o.Height = c.measurer.MeasureText(o.Text)
	c.scene.Modified(o)
	c.save(true)
	return o, nil
}

func (c *Controller) CancelTextEdit() {
	c.editing = nil
}
