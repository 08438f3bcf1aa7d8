package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"image-editor-server/core"
)

type store struct {
	mu       sync.RWMutex
	sessions map[string]core.Session
	images   map[string]core.Image
}

func NewStore() core.Store {
	return &store{
		sessions: make(map[string]core.Session),
		images:   make(map[string]core.Image),
	}
}

func (s *store) CreateSession(ctx context.Context, session *core.Session) (string, error) {
	id := ulid.Make().String()
	sess := *session
	sess.ID = id
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id":         id,
		"background_removed": sess.BackgroundRemoved,
	}).Info("Session created successfully")
	return id, nil
}

func (s *store) FindSession(ctx context.Context, id string) (*core.Session, error) {
	log := logrus.WithField("session_id", id)

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		log.WithField("error", "session not found").Warn("Session with specified ID not found")
		return nil, fmt.Errorf("session with id %s: %w", id, core.ErrNotFound)
	}
	log.Debug("Session retrieved successfully")
	return &sess, nil
}

func (s *store) UpdateSession(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return fmt.Errorf("session with id %s: %w", session.ID, core.ErrNotFound)
	}
	s.sessions[session.ID] = *session
	logrus.WithField("session_id", session.ID).Info("Session updated successfully")
	return nil
}

func (s *store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session with id %s: %w", id, core.ErrNotFound)
	}
	delete(s.sessions, id)
	logrus.WithField("session_id", id).Info("Session deleted successfully")
	return nil
}

func (s *store) SaveImage(ctx context.Context, image *core.Image) (string, error) {
	id := ulid.Make().String()

	var img core.Image
	img.ContentType = image.ContentType
	img.Data.Write(image.Data.Bytes())

	s.mu.Lock()
	s.images[id] = img
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"image_id":    id,
		"data_length": img.Data.Len(),
	}).Info("Image saved successfully")
	return id, nil
}

func (s *store) FindImage(ctx context.Context, id string) (*core.Image, error) {
	log := logrus.WithField("image_id", id)

	s.mu.RLock()
	img, ok := s.images[id]
	s.mu.RUnlock()

	if !ok {
		log.WithField("error", "image not found").Warn("Image with specified ID not found")
		return nil, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
	}

	out := &core.Image{ContentType: img.ContentType}
	out.Data.Write(img.Data.Bytes())
	log.Debug("Image retrieved successfully")
	return out, nil
}
