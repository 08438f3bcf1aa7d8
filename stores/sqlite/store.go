package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"image-editor-server/core"
)

type store struct {
	db *sql.DB
}

func NewStore(dataSourceName string) core.Store {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		stdlog.Fatal(err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	sessionsTable := `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		original TEXT NOT NULL,
		current TEXT NOT NULL,
		background_removed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);`
	if _, err = db.Exec(sessionsTable); err != nil {
		stdlog.Fatal(err)
	}

	imagesTable := `CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		content_type TEXT,
		data BLOB NOT NULL
	);`
	if _, err = db.Exec(imagesTable); err != nil {
		stdlog.Fatal(err)
	}

	return &store{db}
}

func (s *store) CreateSession(ctx context.Context, session *core.Session) (string, error) {
	id := ulid.Make().String()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	log := logrus.WithField("session_id", id)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, original, current, background_removed, created_at) VALUES (?, ?, ?, ?, ?)",
		id, session.Original, session.Current, session.BackgroundRemoved, createdAt.UnixMilli())
	if err != nil {
		log.WithField("error", err).Error("Failed to create session")
		return "", err
	}
	log.Info("Session created successfully")
	return id, nil
}

func (s *store) FindSession(ctx context.Context, id string) (*core.Session, error) {
	log := logrus.WithField("session_id", id)
	log.Debug("Retrieving session by ID")

	var sess core.Session
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, original, current, background_removed, created_at FROM sessions WHERE id = ?", id).
		Scan(&sess.ID, &sess.Original, &sess.Current, &sess.BackgroundRemoved, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "session not found").Warn("Session with specified ID not found")
			return nil, fmt.Errorf("session with id %s: %w", id, core.ErrNotFound)
		}
		log.WithField("error", err).Error("Failed to retrieve session")
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &sess, nil
}

func (s *store) UpdateSession(ctx context.Context, session *core.Session) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET original = ?, current = ?, background_removed = ? WHERE id = ?",
		session.Original, session.Current, session.BackgroundRemoved, session.ID)
	if err != nil {
		logrus.WithField("error", err).Error("Failed to update session")
		return err
	}
	return checkAffected(result, "session", session.ID)
}

func (s *store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		logrus.WithField("error", err).Error("Failed to delete session")
		return err
	}
	if err := checkAffected(result, "session", id); err != nil {
		return err
	}
	logrus.WithField("session_id", id).Info("Session deleted successfully")
	return nil
}

func checkAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%s with id %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func (s *store) SaveImage(ctx context.Context, image *core.Image) (string, error) {
	id := ulid.Make().String()
	data := image.Data.Bytes()
	log := logrus.WithFields(logrus.Fields{
		"image_id":    id,
		"data_length": len(data),
	})

	_, err := s.db.ExecContext(ctx, "INSERT INTO images (id, content_type, data) VALUES (?, ?, ?)", id, image.ContentType, data)
	if err != nil {
		log.WithField("error", err).Error("Failed to save image")
		return "", err
	}
	log.Info("Image saved successfully")
	return id, nil
}

func (s *store) FindImage(ctx context.Context, id string) (*core.Image, error) {
	log := logrus.WithField("image_id", id)
	var contentType sql.NullString
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT content_type, data FROM images WHERE id = ?", id).Scan(&contentType, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("error", "image not found").Warn("Image with specified ID not found")
			return nil, fmt.Errorf("image with id %s: %w", id, core.ErrNotFound)
		}
		log.WithField("error", err).Error("Failed to retrieve image")
		return nil, err
	}
	img := &core.Image{ContentType: contentType.String, Data: *bytes.NewBuffer(data)}
	log.Debug("Image retrieved successfully")
	return img, nil
}
