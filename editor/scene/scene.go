package scene

import (
	"errors"
)

var ErrNotFound = errors.New("object not found")

// Transparent is the background color value meaning "no fill".
const Transparent = "transparent"

// Layer is a bitmap stretched or cover-fitted behind or above the objects.
type Layer struct {
	Src    string  `json:"src"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Scene is the mutable aggregate owned by one editor session. It is not safe
// for concurrent use; the owning editor serializes access.
type Scene struct {
	width           int
	height          int
	backgroundColor string
	backgroundImage *Layer
	overlayImage    *Layer
	objects         []*Object
	events          bus
}

func New(width, height int) *Scene {
	return &Scene{
		width:           width,
		height:          height,
		backgroundColor: Transparent,
	}
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it again.
func (s *Scene) Subscribe(fn Listener) func() {
	return s.events.subscribe(fn)
}

func (s *Scene) Size() (int, int) {
	return s.width, s.height
}

func (s *Scene) SetSize(width, height int) {
	if width == s.width && height == s.height {
		return
	}
	s.width, s.height = width, height
	s.events.emit(Event{Kind: CanvasChanged})
}

func (s *Scene) BackgroundColor() string {
	return s.backgroundColor
}

func (s *Scene) SetBackgroundColor(c string) {
	if c == "" {
		c = Transparent
	}
	s.backgroundColor = c
	s.events.emit(Event{Kind: CanvasChanged})
}

func (s *Scene) BackgroundImage() *Layer {
	return s.backgroundImage
}

func (s *Scene) SetBackgroundImage(l *Layer) {
	s.backgroundImage = l
	s.events.emit(Event{Kind: CanvasChanged})
}

func (s *Scene) OverlayImage() *Layer {
	return s.overlayImage
}

func (s *Scene) SetOverlayImage(l *Layer) {
	s.overlayImage = l
	s.events.emit(Event{Kind: CanvasChanged})
}

// Objects returns the objects in z-order, bottom first. The slice is a copy;
// the objects are shared.
func (s *Scene) Objects() []*Object {
	out := make([]*Object, len(s.objects))
	copy(out, s.objects)
	return out
}

func (s *Scene) Len() int {
	return len(s.objects)
}

// Add appends objects on top of the stack.
func (s *Scene) Add(objs ...*Object) {
	if len(objs) == 0 {
		return
	}
	s.objects = append(s.objects, objs...)
	s.events.emit(Event{Kind: ObjectAdded, Objects: objs})
}

// AddPath appends a committed freehand stroke.
func (s *Scene) AddPath(p *Object) {
	s.objects = append(s.objects, p)
	s.events.emit(Event{Kind: PathCreated, Objects: []*Object{p}})
}

// Remove deletes the given objects and reports how many were present.
func (s *Scene) Remove(objs ...*Object) int {
	removed := s.removeWhere(func(o *Object) bool {
		for _, target := range objs {
			if o == target {
				return true
			}
		}
		return false
	})
	return len(removed)
}

// RemoveWhere deletes every object matching pred and returns them.
func (s *Scene) RemoveWhere(pred func(*Object) bool) []*Object {
	return s.removeWhere(pred)
}

func (s *Scene) removeWhere(pred func(*Object) bool) []*Object {
	var removed []*Object
	kept := s.objects[:0:0]
	for _, o := range s.objects {
		if pred(o) {
			removed = append(removed, o)
			continue
		}
		kept = append(kept, o)
	}
	if len(removed) == 0 {
		return nil
	}
	s.objects = kept
	s.events.emit(Event{Kind: ObjectRemoved, Objects: removed})
	return removed
}

// Modified announces that the caller changed fields of objs in place.
func (s *Scene) Modified(objs ...*Object) {
	s.events.emit(Event{Kind: ObjectModified, Objects: objs})
}

func (s *Scene) FindByTag(tag string) *Object {
	for _, o := range s.objects {
		if o.Tag == tag {
			return o
		}
	}
	return nil
}

func (s *Scene) FindByID(id string) (*Object, error) {
	for _, o := range s.objects {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Scene) IndexOf(o *Object) int {
	for i, obj := range s.objects {
		if obj == o {
			return i
		}
	}
	return -1
}

// Paths returns the freehand strokes in z-order.
func (s *Scene) Paths() []*Object {
	var out []*Object
	for _, o := range s.objects {
		if o.Kind == KindPath {
			out = append(out, o)
		}
	}
	return out
}

// MoveTo changes the z-index of o, clamping idx to the valid range. It
// reports whether the order changed.
func (s *Scene) MoveTo(o *Object, idx int) bool {
	from := s.IndexOf(o)
	if from < 0 {
		return false
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(s.objects)-1 {
		idx = len(s.objects) - 1
	}
	if idx == from {
		return false
	}
	s.objects = append(s.objects[:from], s.objects[from+1:]...)
	s.objects = append(s.objects[:idx], append([]*Object{o}, s.objects[idx:]...)...)
	s.events.emit(Event{Kind: ObjectModified, Objects: []*Object{o}})
	return true
}

func (s *Scene) BringForward(o *Object) bool {
	return s.MoveTo(o, s.IndexOf(o)+1)
}

func (s *Scene) SendBackward(o *Object) bool {
	i := s.IndexOf(o)
	if i <= 0 {
		return false
	}
	return s.MoveTo(o, i-1)
}

func (s *Scene) BringToFront(o *Object) bool {
	return s.MoveTo(o, len(s.objects)-1)
}

func (s *Scene) SendToBack(o *Object) bool {
	return s.MoveTo(o, 0)
}
