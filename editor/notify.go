package editor

type NotificationKind string

const (
	SceneChanged       NotificationKind = "scene-changed"
	SelectionChanged   NotificationKind = "selection-changed"
	ContextMenuChanged NotificationKind = "context-menu"
	HistoryChanged     NotificationKind = "history-changed"
)

type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Session string           `json:"session_id"`
	Payload any              `json:"payload,omitempty"`
}

// Listener receives notifications while the editor is held; it must not call
// back into the editor.
type Listener func(Notification)

// Subscribe registers fn and returns a function that removes it.
func (e *Editor) Subscribe(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}
	e.nextListener++
	id := e.nextListener
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *Editor) emit(kind NotificationKind, payload any) {
	n := Notification{Kind: kind, Session: e.id, Payload: payload}
	for _, fn := range e.listeners {
		fn(n)
	}
}
