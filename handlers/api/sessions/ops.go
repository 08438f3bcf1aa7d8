package sessions

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"image-editor-server/editor"
	"image-editor-server/editor/interact"
	edrender "image-editor-server/editor/render"
	"image-editor-server/editor/scene"
)

type (
	ToolRequest struct {
		Tool       interact.Tool `json:"tool"`
		BrushWidth float64       `json:"brush_width"`
	}

	SelectionRequest struct {
		IDs []string `json:"ids"`
	}

	ReorderRequest struct {
		Op interact.LayerOp `json:"op"`
	}

	// TextRequest adds a text. Style names a catalog text style whose
	// properties are used where Text leaves them empty.
	TextRequest struct {
		Style string          `json:"style,omitempty"`
		Text  scene.TextProps `json:"text"`
	}

	EditTextRequest struct {
		Content string `json:"content"`
	}

	SizeRequest struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}

	ColorRequest struct {
		Color string `json:"color"`
	}

	// ImageRequest references an image by URL, data URL, stored image path or
	// "asset:<name>".
	ImageRequest struct {
		Ref string `json:"ref"`
	}

	IDResponse struct {
		ID string `json:"id"`
	}

	IDsResponse struct {
		IDs []string `json:"ids"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	RemoveObjectResponse struct {
		Ref string `json:"ref"`
	}
)

func (a *API) HandleState() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		writeState(w, r, ed)
	})
}

func (a *API) HandleDocument() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		doc, err := ed.Document()
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func (a *API) HandleHistory() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		st, err := ed.History()
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, st)
	})
}

func (a *API) HandleUndo() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if _, err := ed.Undo(); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleRedo() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if _, err := ed.Redo(); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleAdjustments() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		adj := edrender.DefaultAdjustments()
		if !decode(w, r, &adj) {
			return
		}
		applied, err := ed.SetAdjustments(adj)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, applied)
	})
}

func (a *API) HandleTool() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req ToolRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Tool != "" && !req.Tool.Valid() {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": fmt.Sprintf("unknown tool %q", req.Tool)})
			return
		}
		if req.Tool != "" {
			if err := ed.SetTool(req.Tool); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if req.BrushWidth > 0 {
			if err := ed.SetBrushWidth(req.BrushWidth); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeState(w, r, ed)
	})
}

// HandlePointer accepts gesture events for clients without the socket channel.
func (a *API) HandlePointer() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var ev interact.PointerEvent
		if !decode(w, r, &ev) {
			return
		}
		if err := ed.Pointer(ev); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleWheel() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var ev interact.WheelEvent
		if !decode(w, r, &ev) {
			return
		}
		if _, err := ed.Wheel(ev); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleKey() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var ev interact.KeyEvent
		if !decode(w, r, &ev) {
			return
		}
		n, err := ed.Key(ev)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, CountResponse{Count: n})
	})
}

func (a *API) HandleResetZoom() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if err := ed.ResetZoom(); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleSelect() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req SelectionRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.Select(req.IDs...); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleDeleteSelected() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		n, err := ed.DeleteSelected()
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, CountResponse{Count: n})
	})
}

func (a *API) HandleDuplicate() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		ids, err := ed.Duplicate()
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, IDsResponse{IDs: ids})
	})
}

func (a *API) HandleReorder() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req ReorderRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.Reorder(req.Op); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleTransform() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var t interact.Transform
		if !decode(w, r, &t) {
			return
		}
		if err := ed.Transform(chi.URLParam(r, "objectId"), t); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleAddText() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req TextRequest
		if !decode(w, r, &req) {
			return
		}
		props := req.Text
		if req.Style != "" {
			style, err := a.Catalog.TextStyle(req.Style)
			if err != nil {
				writeError(w, r, err)
				return
			}
			props = mergeText(style.Text, req.Text)
		}
		if props.Content == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Text content is required"})
			return
		}
		id, err := ed.AddText(props)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, IDResponse{ID: id})
	})
}

// mergeText lays the set fields of override over base.
func mergeText(base, override scene.TextProps) scene.TextProps {
	if override.Content != "" {
		base.Content = override.Content
	}
	if override.FontSize > 0 {
		base.FontSize = override.FontSize
	}
	if override.Bold {
		base.Bold = true
	}
	if override.Fill != "" {
		base.Fill = override.Fill
	}
	if override.Stroke != "" {
		base.Stroke = override.Stroke
	}
	if override.StrokeWidth > 0 {
		base.StrokeWidth = override.StrokeWidth
	}
	if override.Align != "" {
		base.Align = override.Align
	}
	if override.LineHeight > 0 {
		base.LineHeight = override.LineHeight
	}
	return base
}

func (a *API) HandleAddShape() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var spec interact.ShapeSpec
		if !decode(w, r, &spec) {
			return
		}
		id, err := ed.AddShape(spec)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, IDResponse{ID: id})
	})
}

func (a *API) HandleBeginTextEdit() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if err := ed.BeginTextEdit(chi.URLParam(r, "objectId")); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleCommitTextEdit() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req EditTextRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.CommitTextEdit(req.Content); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleCancelTextEdit() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if err := ed.CancelTextEdit(); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleResize() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req SizeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.Resize(req.Width, req.Height); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleBackgroundColor() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req ColorRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.SetBackgroundColor(req.Color); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleBackgroundImage() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req ImageRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.SetBackgroundImage(r.Context(), req.Ref); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleClearBackgroundImage() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if err := ed.ClearBackgroundImage(); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleOverlay() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		var req ImageRequest
		if !decode(w, r, &req) {
			return
		}
		if err := ed.SetOverlay(r.Context(), req.Ref); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleRemoveOverlay() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if err := ed.RemoveOverlay(); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

func (a *API) HandleApplyTemplate() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		if err := ed.ApplyTemplate(r.Context(), a.Catalog, chi.URLParam(r, "name")); err != nil {
			writeError(w, r, err)
			return
		}
		writeState(w, r, ed)
	})
}

// HandleMask previews the hard mask sent to object removal.
func (a *API) HandleMask() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		data, err := ed.Mask()
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", edrender.PNG.ContentType())
		w.Write(data)
	})
}

// HandleExport renders the canvas and sends it as a download.
// Query: format=png|jpeg, quality=1..100.
func (a *API) HandleExport() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		format, err := edrender.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		quality := 0
		if q := r.URL.Query().Get("quality"); q != "" {
			if quality, err = strconv.Atoi(q); err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, map[string]string{"error": "quality must be a number"})
				return
			}
		}

		data, err := ed.Export(format, quality)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filename := fmt.Sprintf("edited-image-%d%s", time.Now().Unix(), format.Ext())
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
		logrus.WithFields(logrus.Fields{
			"session_id":  ed.ID(),
			"format":      format,
			"data_length": len(data),
		}).Info("Image exported")
	})
}

// HandleRemoveObject sends the painted strokes to the object-removal service.
// On success the session's current image becomes the result.
func (a *API) HandleRemoveObject() http.HandlerFunc {
	return a.withEditor(func(w http.ResponseWriter, r *http.Request, ed *editor.Editor) {
		ref, err := ed.RemoveObject(r.Context(), nil)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if session, err := a.Store.FindSession(r.Context(), ed.ID()); err == nil {
			session.Current = ref
			if err := a.Store.UpdateSession(r.Context(), session); err != nil {
				logrus.WithFields(logrus.Fields{
					"error":      err,
					"session_id": ed.ID(),
				}).Warn("Failed to record object removal result")
			}
		}
		render.JSON(w, r, RemoveObjectResponse{Ref: ref})
	})
}
