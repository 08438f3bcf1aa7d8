package editor

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor/history"
	"image-editor-server/editor/interact"
	"image-editor-server/editor/render"
	"image-editor-server/editor/scene"
)

// State is the view and panel state a client needs besides the document.
type State struct {
	Tool        interact.Tool        `json:"tool"`
	BrushWidth  float64              `json:"brush_width"`
	Viewport    interact.Viewport    `json:"viewport"`
	Selection   []string             `json:"selection"`
	Editing     string               `json:"editing,omitempty"`
	ContextMenu interact.ContextMenu `json:"context_menu"`
	History     history.State        `json:"history"`
	Adjustments render.Adjustments   `json:"adjustments"`
}

func (e *Editor) State() (State, error) {
	var st State
	err := e.do(func() error {
		st = State{
			Tool:        e.controller.Tool(),
			BrushWidth:  e.controller.BrushWidth(),
			Viewport:    e.controller.Viewport(),
			Selection:   ids(e.controller.Selection()),
			ContextMenu: e.controller.ContextMenu(),
			History:     e.history.State(),
			Adjustments: e.adjustments,
		}
		if o := e.controller.Editing(); o != nil {
			st.Editing = o.ID
		}
		return nil
	})
	return st, err
}

// Document returns the serialized scene.
func (e *Editor) Document() (json.RawMessage, error) {
	var data []byte
	err := e.do(func() error {
		var err error
		data, err = e.scene.Marshal()
		return err
	})
	return data, err
}

func (e *Editor) History() (history.State, error) {
	var st history.State
	err := e.do(func() error {
		st = e.history.State()
		return nil
	})
	return st, err
}

// SetAdjustments rebuilds the main image's filter stack, opacity and shadow.
// The change is saved after the debounce window.
func (e *Editor) SetAdjustments(adj render.Adjustments) (render.Adjustments, error) {
	adj = adj.Normalize()
	err := e.do(func() error {
		if e.history.Restoring() {
			return nil
		}
		if e.main == nil {
			return ErrNoMainImage
		}
		render.ApplyAdjustments(e.main, adj)
		e.adjustments = adj
		e.scene.Modified(e.main)
		return nil
	})
	return adj, err
}

func (e *Editor) SetTool(t interact.Tool) error {
	return e.do(func() error {
		e.controller.SetTool(t)
		return nil
	})
}

func (e *Editor) SetBrushWidth(w float64) error {
	return e.do(func() error {
		e.controller.SetBrushWidth(w)
		return nil
	})
}

func (e *Editor) Pointer(ev interact.PointerEvent) error {
	return e.do(func() error {
		e.controller.Pointer(ev)
		return nil
	})
}

// Wheel reports whether the event changed the zoom.
func (e *Editor) Wheel(ev interact.WheelEvent) (bool, error) {
	var used bool
	err := e.do(func() error {
		used = e.controller.Wheel(ev)
		return nil
	})
	return used, err
}

// Key reports how many objects a Delete or Backspace removed.
func (e *Editor) Key(ev interact.KeyEvent) (int, error) {
	var n int
	err := e.do(func() error {
		n = e.controller.Key(ev)
		return nil
	})
	return n, err
}

func (e *Editor) ResetZoom() error {
	return e.do(func() error {
		e.controller.ResetZoom()
		return nil
	})
}

func (e *Editor) Select(ids ...string) error {
	return e.do(func() error {
		if len(ids) == 0 {
			e.controller.ClearSelection()
			return nil
		}
		return e.controller.Select(ids...)
	})
}

func (e *Editor) DeleteSelected() (int, error) {
	var n int
	err := e.do(func() error {
		n = e.controller.DeleteSelected()
		return nil
	})
	return n, err
}

func (e *Editor) Duplicate() ([]string, error) {
	var out []string
	err := e.do(func() error {
		clones, err := e.controller.Duplicate()
		out = ids(clones)
		return err
	})
	return out, err
}

func (e *Editor) Reorder(op interact.LayerOp) error {
	return e.do(func() error {
		return e.controller.Reorder(op)
	})
}

func (e *Editor) Transform(id string, t interact.Transform) error {
	return e.do(func() error {
		_, err := e.controller.Transform(id, t)
		return err
	})
}

// AddText adds a text object centered on the canvas.
func (e *Editor) AddText(props scene.TextProps) (string, error) {
	var id string
	err := e.do(func() error {
		id = e.controller.AddText(props, "").ID
		return nil
	})
	return id, err
}

func (e *Editor) AddShape(spec interact.ShapeSpec) (string, error) {
	var id string
	err := e.do(func() error {
		o, err := e.controller.AddShape(spec)
		if err != nil {
			return err
		}
		id = o.ID
		return nil
	})
	return id, err
}

func (e *Editor) BeginTextEdit(id string) error {
	return e.do(func() error {
		return e.controller.BeginTextEdit(id)
	})
}

func (e *Editor) CommitTextEdit(content string) error {
	return e.do(func() error {
		_, err := e.controller.CommitTextEdit(content)
		return err
	})
}

func (e *Editor) CancelTextEdit() error {
	return e.do(func() error {
		e.controller.CancelTextEdit()
		return nil
	})
}

// Undo reports false when there was nothing to undo.
func (e *Editor) Undo() (bool, error) {
	var ok bool
	err := e.do(func() error {
		var err error
		ok, err = e.history.Undo()
		return err
	})
	return ok, err
}

func (e *Editor) Redo() (bool, error) {
	var ok bool
	err := e.do(func() error {
		var err error
		ok, err = e.history.Redo()
		return err
	})
	return ok, err
}

// Resize changes the canvas size and refits the background and overlay.
func (e *Editor) Resize(width, height int) error {
	return e.do(func() error {
		if width <= 0 || height <= 0 {
			return ErrInvalidSize
		}
		e.scene.SetSize(width, height)
		e.background.Refit()
		logrus.WithFields(logrus.Fields{
			"session_id": e.id,
			"width":      width,
			"height":     height,
		}).Debug("Canvas resized")
		return e.history.Save(true)
	})
}

func (e *Editor) SetBackgroundColor(value string) error {
	if _, err := render.ParseColor(value); err != nil {
		return err
	}
	return e.do(func() error {
		e.background.SetColor(value)
		return nil
	})
}

func (e *Editor) ClearBackgroundImage() error {
	return e.do(func() error {
		e.background.ClearImage()
		return nil
	})
}

func (e *Editor) RemoveOverlay() error {
	return e.do(func() error {
		e.background.RemoveOverlay()
		return nil
	})
}
