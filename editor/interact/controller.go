// Package interact turns pointer, wheel and keyboard input into scene
// mutations.
package interact

import (
	"errors"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/scene"
)

var (
	ErrNoSelection = errors.New("no active object")
	ErrNotText     = errors.New("object is not a text")
	ErrBadShape    = errors.New("unsupported shape")
	ErrBadLayerOp  = errors.New("unknown layer operation")
)

type Tool string

const (
	ToolCursor Tool = "cursor"
	ToolBrush  Tool = "brush"
)

func (t Tool) Valid() bool {
	return t == ToolCursor || t == ToolBrush
}

const (
	// BrushColor is the stroke color of every freehand path.
	BrushColor = "#ffffff"
	// DefaultBrushWidth is used when Config.BrushWidth is unset.
	DefaultBrushWidth = 30
	// DuplicateOffset shifts a duplicate right and down.
	DuplicateOffset = 20
)

// Saver records a history snapshot.
type Saver interface {
	Save(immediate bool) error
}

// TextMeasurer sizes a text object for its content.
type TextMeasurer interface {
	MeasureText(t *scene.TextProps) (float64, float64)
}

// ContextMenu is where a secondary press on an object happened, in screen
// space. Open is false once the anchor has been cleared.
type ContextMenu struct {
	Open     bool    `json:"open"`
	ObjectID string  `json:"object_id,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type Config struct {
	BrushWidth float64
	// ShapeDefaults is merged into every shape created by AddShape.
	ShapeDefaults scene.ShapeProps

	OnSelection   func([]*scene.Object)
	OnContextMenu func(ContextMenu)
}

// DefaultShapeStyle is the styling a new shape gets for fields the caller
// leaves empty.
var DefaultShapeStyle = scene.ShapeProps{
	Fill:        "#ffffff",
	Stroke:      "#000000",
	StrokeWidth: 2,
}

// Controller is not safe for concurrent use.
type Controller struct {
	scene    *scene.Scene
	saver    Saver
	measurer TextMeasurer
	cfg      Config

	tool      Tool
	selection []*scene.Object
	view      Viewport
	menu      ContextMenu
	drag      *drag
	stroke    []scene.Point
	editing   *scene.Object

	unsubscribe func()
}

func New(s *scene.Scene, saver Saver, measurer TextMeasurer, cfg Config) *Controller {
	if cfg.BrushWidth <= 0 {
		cfg.BrushWidth = DefaultBrushWidth
	}
	c := &Controller{
		scene:    s,
		saver:    saver,
		measurer: measurer,
		cfg:      cfg,
		tool:     ToolCursor,
		view:     Viewport{Zoom: 1},
	}
	c.unsubscribe = s.Subscribe(c.onSceneEvent)
	c.applyTool()
	return c
}

// Close stops listening to the scene.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Controller) onSceneEvent(e scene.Event) {
	switch e.Kind {
	case scene.ObjectAdded, scene.PathCreated:
		for _, o := range e.Objects {
			c.applyToolTo(o)
		}
	case scene.SceneLoaded:
		c.editing = nil
		c.drag = nil
		c.applyTool()
		// Loaded objects are new instances; keep the selection by id.
		if len(c.selection) > 0 {
			var kept []*scene.Object
			for _, o := range c.selection {
				if found, err := c.scene.FindByID(o.ID); err == nil {
					kept = append(kept, found)
				}
			}
			c.setSelection(kept)
		}
	case scene.ObjectRemoved:
		if c.editing != nil && contains(e.Objects, c.editing) {
			c.editing = nil
		}
		var kept []*scene.Object
		for _, o := range c.selection {
			if !contains(e.Objects, o) {
				kept = append(kept, o)
			}
		}
		if len(kept) != len(c.selection) {
			c.setSelection(kept)
		}
	}
}

func (c *Controller) Tool() Tool {
	return c.tool
}

// SetTool switches editing mode. In brush mode nothing can be selected.
func (c *Controller) SetTool(t Tool) {
	if !t.Valid() || t == c.tool {
		return
	}
	c.tool = t
	c.drag = nil
	c.stroke = nil
	if t == ToolBrush {
		c.setSelection(nil)
		c.clearMenu()
	}
	c.applyTool()
	logrus.WithField("tool", t).Debug("Tool changed")
}

func (c *Controller) BrushWidth() float64 {
	return c.cfg.BrushWidth
}

func (c *Controller) SetBrushWidth(w float64) {
	if w > 0 {
		c.cfg.BrushWidth = w
	}
}

func (c *Controller) applyTool() {
	for _, o := range c.scene.Objects() {
		c.applyToolTo(o)
	}
}

func (c *Controller) applyToolTo(o *scene.Object) {
	on := c.tool == ToolCursor
	o.Selectable = on
	o.Evented = on
}

// Selection returns the selected objects, head first.
func (c *Controller) Selection() []*scene.Object {
	out := make([]*scene.Object, len(c.selection))
	copy(out, c.selection)
	return out
}

// Active is the selection head, or nil.
func (c *Controller) Active() *scene.Object {
	if len(c.selection) == 0 {
		return nil
	}
	return c.selection[0]
}

// Select replaces the selection with the objects of the given ids.
func (c *Controller) Select(ids ...string) error {
	var objs []*scene.Object
	for _, id := range ids {
		o, err := c.scene.FindByID(id)
		if err != nil {
			return err
		}
		if !o.Selectable {
			continue
		}
		objs = append(objs, o)
	}
	c.setSelection(objs)
	return nil
}

func (c *Controller) ClearSelection() {
	c.setSelection(nil)
}

func (c *Controller) setSelection(objs []*scene.Object) {
	if sameObjects(objs, c.selection) {
		return
	}
	c.selection = objs
	if c.cfg.OnSelection != nil {
		c.cfg.OnSelection(c.Selection())
	}
}

func (c *Controller) ContextMenu() ContextMenu {
	return c.menu
}

func (c *Controller) openMenu(o *scene.Object, x, y float64) {
	c.menu = ContextMenu{Open: true, ObjectID: o.ID, X: x, Y: y}
	if c.cfg.OnContextMenu != nil {
		c.cfg.OnContextMenu(c.menu)
	}
}

func (c *Controller) clearMenu() {
	if !c.menu.Open {
		return
	}
	c.menu = ContextMenu{}
	if c.cfg.OnContextMenu != nil {
		c.cfg.OnContextMenu(c.menu)
	}
}

func (c *Controller) save(immediate bool) {
	if err := c.saver.Save(immediate); err != nil {
		logrus.WithError(err).Error("Failed to save history")
	}
}

func contains(objs []*scene.Object, o *scene.Object) bool {
	for _, x := range objs {
		if x == o {
			return true
		}
	}
	return false
}

func sameObjects(a, b []*scene.Object) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
