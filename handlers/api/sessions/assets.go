package sessions

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"image-editor-server/assets"
)

// HandleListAssets lists the embedded backgrounds, frames, text styles and
// templates.
func HandleListAssets(catalog *assets.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, catalog)
	}
}

// HandleAssetFile serves an embedded background or frame image.
func HandleAssetFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		data, err := assets.Open(assets.Ref(name))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assets.ErrUnknown) {
				status = http.StatusNotFound
			}
			logrus.WithFields(logrus.Fields{
				"error": err,
				"asset": name,
			}).Warn("Failed to open asset")
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": http.StatusText(status)})
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write(data)
	}
}
