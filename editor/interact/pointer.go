package interact

import (
	"math"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/scene"
)

type PointerType string

const (
	PointerDown PointerType = "down"
	PointerMove PointerType = "move"
	PointerUp   PointerType = "up"
)

type Button int

const (
	ButtonPrimary   Button = 0
	ButtonSecondary Button = 2
)

type Modifiers struct {
	Shift bool `json:"shift"`
	Alt   bool `json:"alt"`
	Ctrl  bool `json:"ctrl"`
	Meta  bool `json:"meta"`
}

// PointerEvent coordinates are in screen space, relative to the canvas element.
type PointerEvent struct {
	Type   PointerType `json:"type"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Button Button      `json:"button"`
	Modifiers
}

type WheelEvent struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"deltaY"`
	Modifiers
}

type KeyEvent struct {
	Key string `json:"key"`
	// InTextField is set when focus is in a form field outside the canvas.
	InTextField bool `json:"inTextField"`
}

type dragMode int

const (
	dragMove dragMode = iota
	dragScale
	dragRotate
)

type dragStart struct {
	obj    *scene.Object
	left   float64
	top    float64
	scaleX float64
	scaleY float64
	angle  float64
	center scene.Point
}

type drag struct {
	mode    dragMode
	origin  scene.Point
	starts  []dragStart
	changed bool
}

// Pointer routes a pointer event according to the active tool.
func (c *Controller) Pointer(ev PointerEvent) {
	p := c.view.ToScene(ev.X, ev.Y)
	if c.tool == ToolBrush {
		c.brush(ev.Type, p)
		return
	}
	switch ev.Type {
	case PointerDown:
		c.pointerDown(ev, p)
	case PointerMove:
		c.pointerMove(p)
	case PointerUp:
		if c.drag != nil && c.drag.changed {
			logrus.WithField("objects", len(c.drag.starts)).Debug("Transform finished")
		}
		c.drag = nil
	}
}

func (c *Controller) brush(t PointerType, p scene.Point) {
	switch t {
	case PointerDown:
		c.stroke = []scene.Point{p}
	case PointerMove:
		if c.stroke != nil {
			c.stroke = append(c.stroke, p)
		}
	case PointerUp:
		if c.stroke == nil {
			return
		}
		path := scene.NewPath(c.stroke, BrushColor, c.cfg.BrushWidth)
		c.stroke = nil
		c.scene.AddPath(path)
		logrus.WithField("points", len(path.Path.Points)).Debug("Stroke committed")
	}
}

func (c *Controller) pointerDown(ev PointerEvent, p scene.Point) {
	hit := c.hitTest(p)
	if ev.Button == ButtonSecondary {
		if hit != nil {
			c.setSelection([]*scene.Object{hit})
			c.openMenu(hit, ev.X, ev.Y)
		}
		return
	}

	if hit == nil {
		c.clearMenu()
		c.setSelection(nil)
		return
	}
	if !contains(c.selection, hit) {
		c.setSelection([]*scene.Object{hit})
	}

	mode := dragMove
	switch {
	case ev.Alt:
		mode = dragRotate
	case ev.Shift:
		mode = dragScale
	}
	d := &drag{mode: mode, origin: p}
	for _, o := range c.selection {
		d.starts = append(d.starts, dragStart{
			obj:    o,
			left:   o.Left,
			top:    o.Top,
			scaleX: o.ScaleX,
			scaleY: o.ScaleY,
			angle:  o.Angle,
			center: o.Center(),
		})
	}
	c.drag = d
}

func (c *Controller) pointerMove(p scene.Point) {
	d := c.drag
	if d == nil {
		return
	}
	objs := make([]*scene.Object, 0, len(d.starts))
	for _, st := range d.starts {
		o := st.obj
		switch d.mode {
		case dragMove:
			o.Left = st.left + p.X - d.origin.X
			o.Top = st.top + p.Y - d.origin.Y
		case dragScale:
			from := math.Hypot(d.origin.X-st.center.X, d.origin.Y-st.center.Y)
			if from == 0 {
				continue
			}
			f := math.Hypot(p.X-st.center.X, p.Y-st.center.Y) / from
			if f <= 0 {
				continue
			}
			o.ScaleX, o.ScaleY = st.scaleX*f, st.scaleY*f
			keepCenter(o, st)
		case dragRotate:
			a0 := math.Atan2(d.origin.Y-st.center.Y, d.origin.X-st.center.X)
			a1 := math.Atan2(p.Y-st.center.Y, p.X-st.center.X)
			o.Angle = math.Mod(st.angle+(a1-a0)*180/math.Pi+360, 360)
			keepCenter(o, st)
		}
		objs = append(objs, o)
	}
	if len(objs) > 0 {
		d.changed = true
		c.scene.Modified(objs...)
	}
}

// keepCenter shifts o so that its center is where it was when the drag began.
func keepCenter(o *scene.Object, st dragStart) {
	o.Left, o.Top = st.left, st.top
	now := o.Center()
	o.Left += st.center.X - now.X
	o.Top += st.center.Y - now.Y
}

// hitTest returns the topmost selectable object under p.
func (c *Controller) hitTest(p scene.Point) *scene.Object {
	objs := c.scene.Objects()
	for i := len(objs) - 1; i >= 0; i-- {
		o := objs[i]
		if o.Selectable && o.Evented && o.Contains(p) {
			return o
		}
	}
	return nil
}

// Wheel zooms around the pointer when a zoom modifier is held, or always in
// brush mode. It reports whether the event was consumed.
func (c *Controller) Wheel(ev WheelEvent) bool {
	if !(ev.Ctrl || ev.Meta || c.tool == ToolBrush) {
		return false
	}
	c.view = c.view.zoomAt(ev.X, ev.Y, math.Pow(zoomBase, ev.DeltaY))
	logrus.WithField("zoom", c.view.Zoom).Debug("Zoom changed")
	return true
}

// Key handles Delete and Backspace. Text input, on the page or inside a text
// object being edited, keeps the keys.
func (c *Controller) Key(ev KeyEvent) int {
	if ev.Key != "Delete" && ev.Key != "Backspace" {
		return 0
	}
	if ev.InTextField || c.editing != nil {
		return 0
	}
	return c.DeleteSelected()
}
