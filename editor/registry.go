package editor

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry holds the live editor of every session.
type Registry struct {
	mu      sync.RWMutex
	editors map[string]*Editor
}

func NewRegistry() *Registry {
	return &Registry{editors: make(map[string]*Editor)}
}

func (r *Registry) Get(id string) (*Editor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.editors[id]
	return e, ok
}

// Put registers e, closing any editor the session had before.
func (r *Registry) Put(e *Editor) {
	r.mu.Lock()
	old := r.editors[e.ID()]
	r.editors[e.ID()] = e
	r.mu.Unlock()

	if old != nil && old != e {
		old.Close()
	}
}

// Remove closes and forgets the session's editor. It reports whether there was one.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.editors[id]
	delete(r.editors, id)
	r.mu.Unlock()

	if ok {
		e.Close()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.editors)
}

// CloseAll tears down every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	editors := r.editors
	r.editors = make(map[string]*Editor)
	r.mu.Unlock()

	for _, e := range editors {
		e.Close()
	}
	logrus.WithField("count", len(editors)).Info("Closed all editors")
}
