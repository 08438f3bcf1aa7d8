package interact

import (
	"math"
	"testing"

	"image-editor-server/editor/scene"
)

type countingSaver struct {
	immediate int
	deferred  int
}

func (s *countingSaver) Save(immediate bool) error {
	if immediate {
		s.immediate++
	} else {
		s.deferred++
	}
	return nil
}

type fixedMeasurer struct{}

func (fixedMeasurer) MeasureText(t *scene.TextProps) (float64, float64) {
	return float64(len(t.Content)) * 10, 20
}

func newTestController(t *testing.T) (*scene.Scene, *Controller, *countingSaver, *scene.Object) {
	t.Helper()
	s := scene.New(800, 600)
	main := scene.NewImage("main", 400, 300)
	main.Tag = scene.MainImageTag
	main.Left, main.Top = 200, 150
	s.Add(main)
	saver := &countingSaver{}
	c := New(s, saver, fixedMeasurer{}, Config{BrushWidth: 12})
	return s, c, saver, main
}

func TestBrush_CommitsWhitePath(t *testing.T) {
	s, c, _, main := newTestController(t)
	c.SetTool(ToolBrush)
	if main.Selectable || main.Evented {
		t.Error("main image selectable in brush mode")
	}

	c.Pointer(PointerEvent{Type: PointerDown, X: 10, Y: 10})
	c.Pointer(PointerEvent{Type: PointerMove, X: 20, Y: 15})
	c.Pointer(PointerEvent{Type: PointerMove, X: 30, Y: 20})
	c.Pointer(PointerEvent{Type: PointerUp, X: 30, Y: 20})

	paths := s.Paths()
	if len(paths) != 1 {
		t.Fatalf("paths = %d, want 1", len(paths))
	}
	p := paths[0]
	if p.Path.Stroke != BrushColor || p.Path.StrokeWidth != 12 || p.Opacity != 1 {
		t.Errorf("path props = %+v opacity %v", *p.Path, p.Opacity)
	}
	if len(p.Path.Points) != 3 {
		t.Errorf("points = %d, want 3", len(p.Path.Points))
	}

	c.SetTool(ToolCursor)
	if !main.Selectable || !main.Evented {
		t.Error("main image not selectable in cursor mode")
	}
}

func TestPointer_SelectAndMove(t *testing.T) {
	_, c, _, main := newTestController(t)

	var selected []*scene.Object
	c.cfg.OnSelection = func(objs []*scene.Object) { selected = objs }

	c.Pointer(PointerEvent{Type: PointerDown, X: 300, Y: 200})
	if len(selected) != 1 || selected[0] != main {
		t.Fatalf("selection = %v, want main image", selected)
	}
	c.Pointer(PointerEvent{Type: PointerMove, X: 310, Y: 230})
	c.Pointer(PointerEvent{Type: PointerUp, X: 310, Y: 230})
	if main.Left != 210 || main.Top != 180 {
		t.Errorf("position = %v,%v want 210,180", main.Left, main.Top)
	}

	c.Pointer(PointerEvent{Type: PointerDown, X: 5, Y: 5})
	if len(selected) != 0 || c.Active() != nil {
		t.Error("empty-canvas click did not clear selection")
	}
}

func TestPointer_ScaleKeepsCenter(t *testing.T) {
	_, c, _, main := newTestController(t)
	center := main.Center()

	c.Pointer(PointerEvent{Type: PointerDown, X: center.X + 50, Y: center.Y})
	c.Pointer(PointerEvent{Type: PointerMove, X: center.X + 100, Y: center.Y, Modifiers: Modifiers{Shift: true}})
	// Mode is fixed at press time, so this is still a move.
	if main.ScaleX != 1 {
		t.Fatalf("scale changed without shift on press: %v", main.ScaleX)
	}
	c.Pointer(PointerEvent{Type: PointerUp})

	main.Left, main.Top = 200, 150
	center = main.Center()
	c.Pointer(PointerEvent{Type: PointerDown, X: center.X + 50, Y: center.Y, Modifiers: Modifiers{Shift: true}})
	c.Pointer(PointerEvent{Type: PointerMove, X: center.X + 100, Y: center.Y})
	c.Pointer(PointerEvent{Type: PointerUp})

	if math.Abs(main.ScaleX-2) > 1e-9 || math.Abs(main.ScaleY-2) > 1e-9 {
		t.Errorf("scale = %v,%v want 2,2", main.ScaleX, main.ScaleY)
	}
	got := main.Center()
	if math.Abs(got.X-center.X) > 1e-6 || math.Abs(got.Y-center.Y) > 1e-6 {
		t.Errorf("center moved from %v to %v", center, got)
	}
}

func TestPointer_RotateKeepsCenter(t *testing.T) {
	_, c, _, main := newTestController(t)
	center := main.Center()

	c.Pointer(PointerEvent{Type: PointerDown, X: center.X + 50, Y: center.Y, Modifiers: Modifiers{Alt: true}})
	c.Pointer(PointerEvent{Type: PointerMove, X: center.X, Y: center.Y + 50})
	c.Pointer(PointerEvent{Type: PointerUp})

	if math.Abs(main.Angle-90) > 1e-6 {
		t.Errorf("angle = %v, want 90", main.Angle)
	}
	got := main.Center()
	if math.Abs(got.X-center.X) > 1e-6 || math.Abs(got.Y-center.Y) > 1e-6 {
		t.Errorf("center moved from %v to %v", center, got)
	}
}

func TestContextMenu(t *testing.T) {
	_, c, _, main := newTestController(t)
	var menus []ContextMenu
	c.cfg.OnContextMenu = func(m ContextMenu) { menus = append(menus, m) }

	c.Pointer(PointerEvent{Type: PointerDown, X: 300, Y: 200, Button: ButtonSecondary})
	if c.Active() != main {
		t.Error("secondary press did not select the object")
	}
	if m := c.ContextMenu(); !m.Open || m.ObjectID != main.ID || m.X != 300 || m.Y != 200 {
		t.Errorf("menu = %+v", m)
	}

	c.Pointer(PointerEvent{Type: PointerDown, X: 5, Y: 5})
	if c.ContextMenu().Open {
		t.Error("primary press on empty canvas kept the menu open")
	}
	if len(menus) != 2 {
		t.Errorf("menu notifications = %d, want 2", len(menus))
	}
}

func TestWheel_ZoomClamp(t *testing.T) {
	_, c, _, _ := newTestController(t)

	if c.Wheel(WheelEvent{X: 100, Y: 100, DeltaY: -500}) {
		t.Error("wheel without modifier zoomed in cursor mode")
	}
	for i := 0; i < 50; i++ {
		c.Wheel(WheelEvent{X: 100, Y: 100, DeltaY: -300, Modifiers: Modifiers{Ctrl: true}})
		if z := c.Viewport().Zoom; z > MaxZoom {
			t.Fatalf("zoom = %v above max", z)
		}
	}
	if z := c.Viewport().Zoom; z != MaxZoom {
		t.Errorf("zoom = %v, want %v", z, MaxZoom)
	}
	for i := 0; i < 50; i++ {
		c.Wheel(WheelEvent{X: 100, Y: 100, DeltaY: 300, Modifiers: Modifiers{Meta: true}})
		if z := c.Viewport().Zoom; z < MinZoom {
			t.Fatalf("zoom = %v below min", z)
		}
	}
	if v := c.Viewport(); v != (Viewport{Zoom: 1}) {
		t.Errorf("viewport = %+v, want reset", v)
	}
}

func TestWheel_PivotsAtPointer(t *testing.T) {
	_, c, _, _ := newTestController(t)
	c.SetTool(ToolBrush)

	before := c.Viewport().ToScene(250, 120)
	if !c.Wheel(WheelEvent{X: 250, Y: 120, DeltaY: -200}) {
		t.Fatal("brush mode wheel not consumed")
	}
	after := c.Viewport().ToScene(250, 120)
	if math.Abs(before.X-after.X) > 1e-9 || math.Abs(before.Y-after.Y) > 1e-9 {
		t.Errorf("pivot moved from %v to %v", before, after)
	}
}

func TestKey_DeleteGuards(t *testing.T) {
	s, c, saver, _ := newTestController(t)
	text := c.AddText(scene.TextProps{Content: "hi"}, "")
	saves := saver.immediate

	if n := c.Key(KeyEvent{Key: "Delete", InTextField: true}); n != 0 {
		t.Error("deleted while typing in a field")
	}
	c.BeginTextEdit(text.ID)
	if n := c.Key(KeyEvent{Key: "Backspace"}); n != 0 {
		t.Error("deleted while editing text inline")
	}
	c.CancelTextEdit()
	c.Select(text.ID)
	if n := c.Key(KeyEvent{Key: "Backspace"}); n != 1 {
		t.Errorf("Key() deleted %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("scene has %d objects, want 1", s.Len())
	}
	if saver.immediate != saves+1 {
		t.Errorf("immediate saves = %d, want %d", saver.immediate, saves+1)
	}
}

func TestDelete_KeepsMainImage(t *testing.T) {
	s, c, _, main := newTestController(t)
	c.Select(main.ID)
	if n := c.DeleteSelected(); n != 0 {
		t.Errorf("DeleteSelected() = %d, want 0", n)
	}
	if s.FindByTag(scene.MainImageTag) == nil {
		t.Error("main image deleted")
	}
}

func TestDuplicate(t *testing.T) {
	s, c, saver, _ := newTestController(t)
	rect, err := c.AddShape(ShapeSpec{Kind: scene.KindRect, Left: 10, Top: 10, Width: 50})
	if err != nil {
		t.Fatalf("AddShape() error: %v", err)
	}
	saves := saver.immediate

	clones, err := c.Duplicate()
	if err != nil {
		t.Fatalf("Duplicate() error: %v", err)
	}
	if len(clones) != 1 || clones[0].Left != 30 || clones[0].Top != 30 || clones[0].ID == rect.ID {
		t.Fatalf("clone = %+v", clones[0])
	}
	if c.Active() != clones[0] {
		t.Error("clone not selected")
	}
	if s.Len() != 3 {
		t.Errorf("scene has %d objects, want 3", s.Len())
	}
	if saver.immediate != saves+1 {
		t.Error("duplicate did not save immediately")
	}

	c.ClearSelection()
	if _, err := c.Duplicate(); err != ErrNoSelection {
		t.Errorf("Duplicate() without selection = %v, want ErrNoSelection", err)
	}
}

func TestAddShape_DefaultStyle(t *testing.T) {
	_, c, _, _ := newTestController(t)
	c.cfg.ShapeDefaults = scene.ShapeProps{Fill: "#00ff00"}

	o, err := c.AddShape(ShapeSpec{Kind: scene.KindRect, Style: scene.ShapeProps{Stroke: "#0000ff"}})
	if err != nil {
		t.Fatalf("AddShape() error: %v", err)
	}
	want := scene.ShapeProps{Fill: "#00ff00", Stroke: "#0000ff", StrokeWidth: DefaultShapeStyle.StrokeWidth}
	if *o.Shape != want {
		t.Errorf("style = %+v, want %+v", *o.Shape, want)
	}

	if _, err := c.AddShape(ShapeSpec{Kind: scene.KindText}); err == nil {
		t.Error("expected error for non-shape kind")
	}
}

func TestReorder(t *testing.T) {
	s, c, _, main := newTestController(t)
	rect, _ := c.AddShape(ShapeSpec{Kind: scene.KindRect})

	if err := c.Reorder(SendToBack); err != nil {
		t.Fatalf("Reorder() error: %v", err)
	}
	if s.IndexOf(rect) != 0 || s.IndexOf(main) != 1 {
		t.Errorf("order = %d,%d", s.IndexOf(rect), s.IndexOf(main))
	}
	if err := c.Reorder("sideways"); err == nil {
		t.Error("expected error for unknown op")
	}
}

func TestCommitTextEdit(t *testing.T) {
	_, c, _, _ := newTestController(t)
	text := c.AddText(scene.TextProps{Content: "hi"}, "")
	if err := c.BeginTextEdit(text.ID); err != nil {
		t.Fatalf("BeginTextEdit() error: %v", err)
	}
	if _, err := c.CommitTextEdit("hello there"); err != nil {
		t.Fatalf("CommitTextEdit() error: %v", err)
	}
	if text.Text.Content != "hello there" || text.Width != 110 {
		t.Errorf("text = %q width %v", text.Text.Content, text.Width)
	}
	if c.Editing() != nil {
		t.Error("still editing after commit")
	}
}

func TestSceneLoaded_RebindsSelection(t *testing.T) {
	s, c, _, main := newTestController(t)
	c.Select(main.ID)
	data, _ := s.Marshal()
	if err := s.Load(data); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	active := c.Active()
	if active == nil || active.ID != main.ID || active == main {
		t.Errorf("active = %v, want reloaded instance of main", active)
	}
	if !active.Selectable {
		t.Error("reloaded object not selectable in cursor mode")
	}
}
