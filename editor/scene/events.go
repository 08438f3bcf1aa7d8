package scene

// EventKind enumerates scene mutations observers can react to.
type EventKind int

const (
	ObjectAdded EventKind = iota + 1
	ObjectRemoved
	ObjectModified
	// PathCreated fires instead of ObjectAdded when a freehand stroke is committed.
	PathCreated
	// CanvasChanged covers size, background and overlay changes.
	CanvasChanged
	// SceneLoaded fires after the whole scene was replaced from a snapshot.
	SceneLoaded
)

func (k EventKind) String() string {
	switch k {
	case ObjectAdded:
		return "object-added"
	case ObjectRemoved:
		return "object-removed"
	case ObjectModified:
		return "object-modified"
	case PathCreated:
		return "path-created"
	case CanvasChanged:
		return "canvas-changed"
	case SceneLoaded:
		return "scene-loaded"
	}
	return "unknown"
}

type Event struct {
	Kind    EventKind
	Objects []*Object
}

type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// bus delivers events synchronously, in subscription order.
type bus struct {
	next int
	subs []subscription
}

func (b *bus) subscribe(fn Listener) func() {
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) emit(e Event) {
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	for _, s := range subs {
		s.fn(e)
	}
}
