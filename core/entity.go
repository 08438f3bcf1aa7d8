package core

import (
	"bytes"
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type (
	// Session is what the upload flow hands to the editor: the original upload,
	// the image to edit, and whether background removal produced the latter.
	Session struct {
		ID                string    `json:"id"`
		Original          string    `json:"original"`
		Current           string    `json:"current"`
		BackgroundRemoved bool      `json:"background_removed"`
		CreatedAt         time.Time `json:"created_at"`
	}

	SessionStore interface {
		CreateSession(ctx context.Context, session *Session) (string, error)
		FindSession(ctx context.Context, id string) (*Session, error)
		UpdateSession(ctx context.Context, session *Session) error
		DeleteSession(ctx context.Context, id string) error
	}

	Image struct {
		ContentType string
		Data        bytes.Buffer
	}

	ImageStore interface {
		SaveImage(ctx context.Context, image *Image) (string, error)
		FindImage(ctx context.Context, id string) (*Image, error)
	}

	Store interface {
		SessionStore
		ImageStore
	}
)

// ImagePath is the URL path under which a stored image is served.
func ImagePath(id string) string {
	return "/api/images/" + id
}
