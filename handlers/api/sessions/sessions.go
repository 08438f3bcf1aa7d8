package sessions

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"image-editor-server/assets"
	"image-editor-server/core"
	"image-editor-server/editor"
	"image-editor-server/editor/interact"
	"image-editor-server/editor/mask"
	edrender "image-editor-server/editor/render"
	"image-editor-server/editor/scene"
	"image-editor-server/media"
	"image-editor-server/remote"
)

// API serves the editing operations of every open session.
type API struct {
	Store    core.SessionStore
	Registry *editor.Registry
	Catalog  *assets.Catalog
	Config   editor.Config
	Deps     editor.Deps
}

type (
	OpenResponse struct {
		Session  *core.Session   `json:"session"`
		State    editor.State    `json:"state"`
		Document json.RawMessage `json:"document"`
	}
)

// HandleOpen starts an editor on the session's current image. Opening an
// already open session replaces its editor.
func (a *API) HandleOpen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionId")
		session, err := a.Store.FindSession(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ed, err := editor.Open(r.Context(), id, session.Current, a.Config, a.Deps)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":      err,
				"session_id": id,
			}).Error("Failed to open editor")
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, map[string]string{"error": "Failed to load image"})
			return
		}
		a.Registry.Put(ed)

		st, err := ed.State()
		if err != nil {
			writeError(w, r, err)
			return
		}
		doc, err := ed.Document()
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, OpenResponse{Session: session, State: st, Document: doc})
	}
}

func (a *API) HandleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := a.Store.FindSession(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, session)
	}
}

// HandleDelete tears the editor down and forgets the session.
func (a *API) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionId")
		a.Registry.Remove(id)
		if err := a.Store.DeleteSession(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleClose tears the editor down but keeps the session.
func (a *API) HandleClose() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Registry.Remove(chi.URLParam(r, "sessionId")) {
			writeError(w, r, errNotOpen)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

var errNotOpen = errors.New("editor is not open")

// withEditor resolves the session's live editor or answers 404.
func (a *API) withEditor(fn func(w http.ResponseWriter, r *http.Request, ed *editor.Editor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ed, ok := a.Registry.Get(chi.URLParam(r, "sessionId"))
		if !ok {
			writeError(w, r, errNotOpen)
			return
		}
		fn(w, r, ed)
	}
}

// MaxBodyBytes caps JSON request bodies. Image data URLs sent inline count
// against it too.
const MaxBodyBytes = media.DefaultMaxBytes + 1<<20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logrus.WithField("error", err).Warn("Failed to decode request")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, map[string]string{"error": "Request body is too large"})
			return false
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

// writeState answers with the editor state after a successful operation.
func writeState(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
	st, err := ed.State()
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, errNotOpen),
		errors.Is(err, scene.ErrNotFound), errors.Is(err, assets.ErrUnknown):
		return http.StatusNotFound
	case errors.Is(err, mask.ErrNoSelection), errors.Is(err, interact.ErrNoSelection),
		errors.Is(err, editor.ErrClosed), errors.Is(err, editor.ErrNoMainImage):
		return http.StatusConflict
	case errors.Is(err, remote.ErrServiceUnavailable), errors.Is(err, remote.ErrBadResponse):
		return http.StatusBadGateway
	case errors.Is(err, editor.ErrInvalidSize), errors.Is(err, interact.ErrNotText),
		errors.Is(err, interact.ErrBadShape), errors.Is(err, interact.ErrBadLayerOp),
		errors.Is(err, edrender.ErrBadFormat), errors.Is(err, edrender.ErrBadColor),
		errors.Is(err, media.ErrBadRef), errors.Is(err, media.ErrNotImage),
		errors.Is(err, media.ErrTooLarge):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := logrus.WithFields(logrus.Fields{
		"error":      err,
		"session_id": chi.URLParam(r, "sessionId"),
		"status":     status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Editor operation failed")
	} else {
		entry.Warn("Editor operation rejected")
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}
