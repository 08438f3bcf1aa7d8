package history

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"image-editor-server/editor/scene"
)

func newTestManager(t *testing.T) (*scene.Scene, *Manager) {
	t.Helper()
	s := scene.New(100, 100)
	m := New(s, Options{})
	if err := m.Save(true); err != nil {
		t.Fatalf("initial Save() error: %v", err)
	}
	return s, m
}

func marshal(t *testing.T, s *scene.Scene) []byte {
	t.Helper()
	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	return data
}

func TestSave_Monotonic(t *testing.T) {
	s, m := newTestManager(t)
	for i := 1; i <= 5; i++ {
		s.Add(scene.NewImage("x", float64(i), float64(i)))
		if err := m.Save(true); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
		if got := m.State().Cursor; got != i {
			t.Errorf("cursor = %d, want %d", got, i)
		}
		if !bytes.Equal(m.Current(), marshal(t, s)) {
			t.Errorf("history[cursor] differs from scene after save %d", i)
		}
	}
}

func TestSave_Dedup(t *testing.T) {
	s, m := newTestManager(t)
	s.SetBackgroundColor("#ffffff")
	m.Save(true)
	m.Save(true)
	m.Save(true)
	if got := m.State().Length; got != 2 {
		t.Errorf("length = %d, want 2", got)
	}
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	s, m := newTestManager(t)
	main := scene.NewImage("main", 10, 10)
	main.Tag = scene.MainImageTag
	s.Add(main)
	m.Save(true)
	s.SetBackgroundColor("#123456")
	m.Save(true)
	want := marshal(t, s)

	if ok, err := m.Undo(); !ok || err != nil {
		t.Fatalf("Undo() = %v, %v", ok, err)
	}
	if s.BackgroundColor() != scene.Transparent {
		t.Errorf("background after undo = %q", s.BackgroundColor())
	}
	if ok, err := m.Redo(); !ok || err != nil {
		t.Fatalf("Redo() = %v, %v", ok, err)
	}
	if got := marshal(t, s); !bytes.Equal(got, want) {
		t.Errorf("scene after undo/redo:\n%s\nwant:\n%s", got, want)
	}
	if s.FindByTag(scene.MainImageTag) == nil {
		t.Error("main image lost after round trip")
	}
}

func TestRedo_TruncatedByNewSave(t *testing.T) {
	s, m := newTestManager(t)
	s.SetBackgroundColor("#111111")
	m.Save(true)
	s.SetBackgroundColor("#222222")
	m.Save(true)

	m.Undo()
	s.SetBackgroundColor("#333333")
	m.Save(true)

	if m.CanRedo() {
		t.Error("CanRedo() = true after new save")
	}
	if ok, _ := m.Redo(); ok {
		t.Error("Redo() succeeded after truncation")
	}
	if got := m.State(); got.Length != 3 || got.Cursor != 2 {
		t.Errorf("state = %+v, want length 3 cursor 2", got)
	}
}

func TestUndo_Bounds(t *testing.T) {
	_, m := newTestManager(t)
	if ok, err := m.Undo(); ok || err != nil {
		t.Errorf("Undo() at start = %v, %v", ok, err)
	}
	if ok, err := m.Redo(); ok || err != nil {
		t.Errorf("Redo() at end = %v, %v", ok, err)
	}
}

type flakyTarget struct {
	*scene.Scene
	failLoad bool
}

func (f *flakyTarget) Load(data []byte) error {
	if f.failLoad {
		return f.Scene.Load([]byte("{not json"))
	}
	return f.Scene.Load(data)
}

func TestUndo_CorruptSnapshotKeepsState(t *testing.T) {
	target := &flakyTarget{Scene: scene.New(50, 50)}
	m := New(target, Options{})
	m.Save(true)
	target.SetBackgroundColor("#abcdef")
	m.Save(true)
	before := m.State()

	target.failLoad = true
	ok, err := m.Undo()
	if ok || !errors.Is(err, scene.ErrCorruptSnapshot) {
		t.Fatalf("Undo() = %v, %v, want ErrCorruptSnapshot", ok, err)
	}
	if m.State() != before {
		t.Errorf("state = %+v, want %+v", m.State(), before)
	}
	if m.Restoring() {
		t.Error("lock still held after failed undo")
	}
	if target.BackgroundColor() != "#abcdef" {
		t.Errorf("scene changed: background = %q", target.BackgroundColor())
	}
}

func TestSave_IgnoredWhileRestoring(t *testing.T) {
	s := scene.New(10, 10)
	var m *Manager
	m = New(s, Options{OnRestore: func() {
		s.SetBackgroundColor("#ff0000")
		m.Save(true)
	}})
	m.Save(true)
	s.SetBackgroundColor("#00ff00")
	m.Save(true)

	m.Undo()
	if got := m.State().Length; got != 2 {
		t.Errorf("length = %d, want 2", got)
	}
}

func TestDebounce_Coalesces(t *testing.T) {
	fired := make(chan func(), 4)
	s := scene.New(10, 10)
	m := New(s, Options{
		Debounce: 10 * time.Millisecond,
		Dispatch: func(f func()) { fired <- f },
	})
	m.Save(true)

	stop := m.Watch(s)
	defer stop()
	s.SetBackgroundColor("#010101")
	s.SetBackgroundColor("#020202")

	select {
	case f := <-fired:
		f()
	case <-time.After(time.Second):
		t.Fatal("debounced save never fired")
	}
	// A superseded timer may still have dispatched before it was stopped.
	for len(fired) > 0 {
		(<-fired)()
	}
	if got := m.State().Length; got != 2 {
		t.Errorf("length = %d, want 2", got)
	}
}

func TestDebounce_CanceledByImmediate(t *testing.T) {
	fired := make(chan func(), 4)
	s := scene.New(10, 10)
	m := New(s, Options{
		Debounce: 10 * time.Millisecond,
		Dispatch: func(f func()) { fired <- f },
	})
	m.Save(true)
	s.SetBackgroundColor("#010101")
	m.Save(false)
	m.Save(true)

	time.Sleep(30 * time.Millisecond)
	for len(fired) > 0 {
		(<-fired)()
	}
	if got := m.State().Length; got != 2 {
		t.Errorf("length = %d, want 2", got)
	}
}

func TestClose_DropsPendingSave(t *testing.T) {
	fired := make(chan func(), 4)
	s := scene.New(10, 10)
	m := New(s, Options{
		Debounce: 5 * time.Millisecond,
		Dispatch: func(f func()) { fired <- f },
	})
	m.Save(true)
	s.SetBackgroundColor("#010101")
	m.Save(false)
	m.Close()

	time.Sleep(20 * time.Millisecond)
	for len(fired) > 0 {
		(<-fired)()
	}
	if got := m.State().Length; got != 1 {
		t.Errorf("length = %d, want 1", got)
	}
}
