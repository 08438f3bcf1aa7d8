package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"image-editor-server/editor"
	"image-editor-server/middleware"
)

var (
	errUnauthorized = errors.New("invalid session token")
	errForbidden    = errors.New("token does not grant access to this session")
	errNotOpen      = errors.New("editor is not open")
	errNotJoined    = errors.New("socket has not joined a session")
)

type TokenParser interface {
	Parse(token string) (*middleware.SessionClaims, error)
}

// emitFunc sends one event to every socket in a session's room.
type emitFunc func(sessionID, event string, payload any)

// watch forwards one editor's notifications while a session has viewers.
type watch struct {
	editor  *editor.Editor
	stop    func()
	viewers int
}

// Hub tracks which socket follows which session and keeps one notification
// subscription per watched editor.
type Hub struct {
	registry *editor.Registry
	tokens   TokenParser
	emit     emitFunc

	mu       sync.Mutex
	sessions map[string]*watch
	sockets  map[string]string
}

func NewHub(registry *editor.Registry, tokens TokenParser) *Hub {
	return &Hub{
		registry: registry,
		tokens:   tokens,
		emit:     func(string, string, any) {},
		sessions: make(map[string]*watch),
		sockets:  make(map[string]string),
	}
}

// join binds socketID to sessionID after checking the token. A socket follows
// one session at a time.
func (h *Hub) join(socketID, sessionID, token string) (*editor.Editor, int, error) {
	claims, err := h.tokens.Parse(token)
	if err != nil {
		return nil, 0, errUnauthorized
	}
	if claims.Subject != sessionID {
		return nil, 0, errForbidden
	}
	ed, ok := h.registry.Get(sessionID)
	if !ok {
		return nil, 0, errNotOpen
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.sockets[socketID]; ok {
		if prev == sessionID {
			h.ensureLocked(sessionID, ed)
			return ed, h.sessions[sessionID].viewers, nil
		}
		h.leaveLocked(socketID)
	}
	h.sockets[socketID] = sessionID
	w := h.ensureLocked(sessionID, ed)
	w.viewers++
	return ed, w.viewers, nil
}

// ensureLocked subscribes to ed unless the session already follows it. A
// reopened session gets a new editor, so the old subscription is dropped.
func (h *Hub) ensureLocked(sessionID string, ed *editor.Editor) *watch {
	w := h.sessions[sessionID]
	if w != nil && w.editor == ed {
		return w
	}
	if w == nil {
		w = &watch{}
		h.sessions[sessionID] = w
	} else {
		w.stop()
	}
	w.editor = ed
	w.stop = ed.Subscribe(func(n editor.Notification) {
		h.emit(sessionID, string(n.Kind), n)
	})
	logrus.WithField("session_id", sessionID).Debug("Forwarding editor notifications")
	return w
}

func (h *Hub) leave(socketID string) (string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(socketID)
}

// leaveLocked reports the session the socket left and how many viewers remain.
func (h *Hub) leaveLocked(socketID string) (string, int) {
	sessionID, ok := h.sockets[socketID]
	if !ok {
		return "", 0
	}
	delete(h.sockets, socketID)
	w := h.sessions[sessionID]
	if w == nil {
		return sessionID, 0
	}
	w.viewers--
	if w.viewers > 0 {
		return sessionID, w.viewers
	}
	w.stop()
	delete(h.sessions, sessionID)
	return sessionID, 0
}

// editorFor resolves the live editor of the socket's session.
func (h *Hub) editorFor(socketID string) (*editor.Editor, error) {
	h.mu.Lock()
	sessionID, ok := h.sockets[socketID]
	h.mu.Unlock()
	if !ok {
		return nil, errNotJoined
	}
	ed, ok := h.registry.Get(sessionID)
	if !ok {
		return nil, errNotOpen
	}

	h.mu.Lock()
	if _, watched := h.sessions[sessionID]; watched {
		h.ensureLocked(sessionID, ed)
	}
	h.mu.Unlock()
	return ed, nil
}

// Viewers returns the number of sockets following each session.
func (h *Hub) Viewers() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.sessions))
	for id, w := range h.sessions {
		out[id] = w.viewers
	}
	return out
}

// decodeArg converts a socket.io argument, usually a map, into v.
func decodeArg(arg any, v any) error {
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
