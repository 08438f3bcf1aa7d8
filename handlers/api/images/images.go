package images

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"image-editor-server/core"
)

// HandleGet serves a stored image blob. Blobs never change once written.
func HandleGet(store core.ImageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Image not found"})
			return
		}

		img, err := store.FindImage(r.Context(), id)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, core.ErrNotFound) {
				status = http.StatusNotFound
			}
			logrus.WithFields(logrus.Fields{
				"error":    err,
				"image_id": id,
			}).Warn("Failed to get image")
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": http.StatusText(status)})
			return
		}

		contentType := img.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(img.Data.Bytes())
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(img.Data.Len()))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Write(img.Data.Bytes())
	}
}
