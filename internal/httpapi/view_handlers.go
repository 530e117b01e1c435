package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"tankwatch-chart/internal/export"
	"tankwatch-chart/internal/models"
)

// ViewStore open chart views.
type ViewStore interface {
	Open(scope models.Scope) (string, error)
	Snapshot(ctx context.Context, id string) (*models.ViewSnapshot, error)
	SetScope(ctx context.Context, id string, scope models.Scope) error
	SetVisibility(ctx context.Context, id, deviceID string, visible bool) error
	Close(ctx context.Context, id string) error
}

// ViewHandler chart view endpoints.
type ViewHandler struct {
	views  ViewStore
	logger *zap.Logger
	now    func() time.Time
}

func NewViewHandler(views ViewStore, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{views: views, logger: logger, now: time.Now}
}

type visibilityBody struct {
	DeviceID string `json:"device_id"`
	Visible  bool   `json:"visible"`
}

// POST /chart/api/v1/views
// body: {range, mode, device_id?}
func (h *ViewHandler) Open(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var scope models.Scope
	if err := readBodyJSON(r, maxBodyBytes, &scope); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	id, err := h.views.Open(scope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"view_id": id}))
}

// GET /chart/api/v1/views/:id
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.views.Snapshot(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

// PUT /chart/api/v1/views/:id/scope
func (h *ViewHandler) SetScope(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var scope models.Scope
	if err := readBodyJSON(r, maxBodyBytes, &scope); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if err := h.views.SetScope(r.Context(), ps.ByName("id"), scope); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// PUT /chart/api/v1/views/:id/visibility
// body: {device_id, visible}
func (h *ViewHandler) SetVisibility(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body visibilityBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || body.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("device_id is required"))
		return
	}
	if err := h.views.SetVisibility(r.Context(), ps.ByName("id"), body.DeviceID, body.Visible); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// GET /chart/api/v1/views/:id/export?format=csv|json|xlsx
// Only views running in this process carry their series.
func (h *ViewHandler) Export(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	snap, err := h.views.Snapshot(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if snap.Series == nil && snap.RecordCount > 0 {
		writeJSON(w, http.StatusConflict, Fail("view is served from cache, series unavailable"))
		return
	}

	title := ""
	if len(snap.Series) > 0 {
		title = snap.Series[0].DeviceTitle
	}
	name := export.FileName(snap.Scope, title, format, h.now())

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.Write(w, format, export.Flatten(snap.Series)); err != nil {
		h.logger.Error("Failed to write export",
			zap.String("view_id", snap.ViewID),
			zap.String("format", string(format)),
			zap.Error(err),
		)
	}
}

// DELETE /chart/api/v1/views/:id
func (h *ViewHandler) Close(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.views.Close(r.Context(), ps.ByName("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *ViewHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidRange), errors.Is(err, models.ErrInvalidMode):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, models.ErrViewNotFound), errors.Is(err, models.ErrViewClosed):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case errors.Is(err, models.ErrTooManyViews):
		writeJSON(w, http.StatusTooManyRequests, Fail(err.Error()))
	default:
		h.logger.Error("View request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
