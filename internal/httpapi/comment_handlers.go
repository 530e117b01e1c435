package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
	"tankwatch-chart/internal/repository"
)

// CommentStore annotation store.
type CommentStore interface {
	ListComments(ctx context.Context) ([]models.Comment, error)
	InsertComment(ctx context.Context, in models.NewComment) (*models.Comment, error)
}

// CommentHandler comment endpoints. onChange, when set, runs after a
// successful insert.
type CommentHandler struct {
	store    CommentStore
	onChange func()
	logger   *zap.Logger
}

func NewCommentHandler(store CommentStore, onChange func(), logger *zap.Logger) *CommentHandler {
	return &CommentHandler{store: store, onChange: onChange, logger: logger}
}

// GET /chart/api/v1/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	comments, err := h.store.ListComments(r.Context())
	if err != nil {
		h.logger.Error("Failed to list comments", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list comments"))
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, Ok(comments))
}

// POST /chart/api/v1/comments
// body: {source_reading_id, text, author?}
func (h *CommentHandler) Insert(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in models.NewComment
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	comment, err := h.store.InsertComment(r.Context(), in)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidComment) {
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
			return
		}
		h.logger.Error("Failed to insert comment", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to insert comment"))
		return
	}
	if h.onChange != nil {
		h.onChange()
	}
	writeJSON(w, http.StatusOK, Ok(comment))
}
