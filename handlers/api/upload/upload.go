package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"image-editor-server/core"
	"image-editor-server/media"
)

// FallbackNotice tells the client it is editing the original upload.
const FallbackNotice = "Background removal failed, using the original image"

type (
	BackgroundRemover interface {
		RemoveBackground(ctx context.Context, filename, contentType string, data []byte) (string, error)
	}

	TokenIssuer interface {
		Issue(sessionID string, backgroundRemoved bool) (string, error)
	}

	Config struct {
		MaxBytes int64
		// PublicBaseURL prefixes image paths in responses. Empty keeps them relative.
		PublicBaseURL string
	}

	UploadResponse struct {
		SessionID         string `json:"session_id"`
		Token             string `json:"token"`
		Original          string `json:"original"`
		Current           string `json:"current"`
		BackgroundRemoved bool   `json:"background_removed"`
		Notice            string `json:"notice,omitempty"`
	}
)

// HandleUpload validates an image upload, stores it, asks the background
// removal service for a cut-out and creates an editing session. When the
// service fails the session starts from the original.
func HandleUpload(store core.Store, remover BackgroundRemover, tokens TokenIssuer, cfg Config) http.HandlerFunc {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = media.DefaultMaxBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		data, filename, err := readFile(w, r, cfg.MaxBytes)
		if err != nil {
			logrus.WithField("error", err).Warn("Rejected upload")
			render.Status(r, statusFor(err))
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}
		contentType, err := media.Validate(data, cfg.MaxBytes)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":    err,
				"filename": filename,
			}).Warn("Rejected upload")
			render.Status(r, statusFor(err))
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		img := &core.Image{ContentType: contentType}
		img.Data.Write(data)
		imageID, err := store.SaveImage(r.Context(), img)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to save upload")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save image"})
			return
		}

		session := &core.Session{
			Original: core.ImagePath(imageID),
			Current:  core.ImagePath(imageID),
		}
		var notice string
		if remover != nil {
			cutout, err := remover.RemoveBackground(r.Context(), filename, contentType, data)
			if err != nil {
				notice = FallbackNotice
			} else {
				session.Current = cutout
				session.BackgroundRemoved = true
			}
		}

		sessionID, err := store.CreateSession(r.Context(), session)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to create session")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create session"})
			return
		}
		token, err := tokens.Issue(sessionID, session.BackgroundRemoved)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to issue session token")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to issue session token"})
			return
		}

		logrus.WithFields(logrus.Fields{
			"session_id":         sessionID,
			"image_id":           imageID,
			"background_removed": session.BackgroundRemoved,
		}).Info("Upload accepted")

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, UploadResponse{
			SessionID:         sessionID,
			Token:             token,
			Original:          absolute(cfg.PublicBaseURL, session.Original),
			Current:           absolute(cfg.PublicBaseURL, session.Current),
			BackgroundRemoved: session.BackgroundRemoved,
			Notice:            notice,
		})
	}
}

func readFile(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, string, error) {
	// Multipart framing needs some room on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", media.ErrTooLarge
		}
		return nil, "", media.ErrNoFile
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func statusFor(err error) int {
	if errors.Is(err, media.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func absolute(base, ref string) string {
	if base == "" || !strings.HasPrefix(ref, "/") {
		return ref
	}
	return strings.TrimSuffix(base, "/") + ref
}
