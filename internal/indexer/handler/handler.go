// Package handler exposes the indexer's control API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
)

type Controller interface {
	Update(ctx context.Context, id uint32) (*indexer.Snapshot, error)
	Rebuild(ctx context.Context) (indexer.RebuildResult, error)
	Status() indexer.Status
}

type Handler struct {
	ctrl   Controller
	logger *slog.Logger
}

func New(ctrl Controller) *Handler {
	return &Handler{
		ctrl:   ctrl,
		logger: slog.Default().With("component", "index-handler"),
	}
}

// Register mounts the control routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/index/update/{id}", h.Update)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/status", h.Status)
}

type updateResponse struct {
	BookID  uint32 `json:"book_id"`
	Status  string `json:"status"`
	Version uint64 `json:"version"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, 0, "book id %q is not a non-negative 32-bit integer", r.PathValue("id")))
		return
	}
	snap, err := h.ctrl.Update(r.Context(), uint32(id))
	if err != nil {
		logger.FromContext(r.Context()).Warn("update failed", "book_id", id, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updateResponse{BookID: uint32(id), Status: "indexed", Version: snap.Version})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Rebuild(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("rebuild failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{
		"error": err.Error(),
		"code":  apperrors.Code(err),
	})
}
