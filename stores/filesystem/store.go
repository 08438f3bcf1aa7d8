package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"image-editor-server/core"
)

type fsStore struct {
	basePath string
}

type imageMeta struct {
	ContentType string `json:"content_type"`
}

// NewStore creates a store that keeps sessions and images as files under basePath.
func NewStore(basePath string) core.Store {
	for _, dir := range []string{"sessions", "images"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) path(kind, id, ext string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid id %q: %w", id, core.ErrNotFound)
	}
	return filepath.Join(s.basePath, kind, id+ext), nil
}

func (s *fsStore) CreateSession(ctx context.Context, session *core.Session) (string, error) {
	sess := *session
	sess.ID = ulid.Make().String()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if err := s.writeSession(&sess); err != nil {
		return "", err
	}
	logrus.WithField("session_id", sess.ID).Info("Session created successfully")
	return sess.ID, nil
}

func (s *fsStore) writeSession(sess *core.Session) error {
	filePath, err := s.path("sessions", sess.ID, ".json")
	if err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		logrus.WithError(err).WithField("file_path", filePath).Error("Failed to write session")
		return err
	}
	return nil
}

func (s *fsStore) FindSession(ctx context.Context, id string) (*core.Session, error) {
	log := logrus.WithField("session_id", id)
	filePath, err := s.path("sessions", id, ".json")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("error", "session not found").Warn("Session with specified ID not found")
			return nil, fmt.Errorf("session with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read session")
		return nil, err
	}
	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *fsStore) UpdateSession(ctx context.Context, session *core.Session) error {
	if _, err := s.FindSession(ctx, session.ID); err != nil {
		return err
	}
	if err := s.writeSession(session); err != nil {
		return err
	}
	logrus.WithField("session_id", session.ID).Info("Session updated successfully")
	return nil
}

func (s *fsStore) DeleteSession(ctx context.Context, id string) error {
	filePath, err := s.path("sessions", id, ".json")
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session with id %s: %w", id, core.ErrNotFound)
		}
		return err
	}
	logrus.WithField("session_id", id).Info("Session deleted successfully")
	return nil
}

func (s *fsStore) SaveImage(ctx context.Context, image *core.Image) (string, error) {
	id := ulid.Make().String()
	dataPath, _ := s.path("images", id, "")
	metaPath, _ := s.path("images", id, ".meta")
	log := logrus.WithFields(logrus.Fields{
		"image_id":  id,
		"file_path": dataPath,
	})

	meta, err := json.Marshal(imageMeta{ContentType: image.ContentType})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(metaPath, meta, 0644); err != nil {
		log.WithError(err).Error("Failed to write image metadata")
		return "", err
	}
	if err := os.WriteFile(dataPath, image.Data.Bytes(), 0644); err != nil {
		log.WithError(err).Error("Failed to write image")
		return "", err
	}
	log.Info("Image saved successfully")
	return id, nil
}

func (s *fsStore) FindImage(ctx context.Context, id string) (*core.Image, error) {
	log := logrus.WithField("image_id", id)
	dataPath, err := s.path("images", id, "")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("error", "image not found").Warn("Image with specified ID not found")
			return nil, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}

	img := &core.Image{}
	img.Data.Write(data)
	if raw, err := os.ReadFile(dataPath + ".meta"); err == nil {
		var meta imageMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			img.ContentType = meta.ContentType
		}
	}
	log.Debug("Image retrieved successfully")
	return img, nil
}
