// Package handler exposes the acquisition service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/booksearch/pkg/logger"
)

type Publisher interface {
	Ingest(ctx context.Context, id uint32, text string) (*ingestion.IngestResponse, error)
	Status(ctx context.Context, id uint32) (ingestion.StatusResponse, error)
	List(ctx context.Context) (ingestion.ListResponse, error)
}

type Handler struct {
	publisher       Publisher
	maxRequestBytes int64
	logger          *slog.Logger
}

// New builds the handler. Uploads larger than maxRequestBytes are rejected;
// zero disables the limit.
func New(pub Publisher, maxRequestBytes int64) *Handler {
	return &Handler{
		publisher:       pub,
		maxRequestBytes: maxRequestBytes,
		logger:          slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ingest/{id}", h.Ingest)
	mux.HandleFunc("GET /api/v1/ingest/status/{id}", h.Status)
	mux.HandleFunc("GET /api/v1/ingest/list", h.List)
}

func parseID(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, 0, "book id %q is not a non-negative 32-bit integer", r.PathValue("id"))
	}
	return uint32(id), nil
}

// Ingest stores a book. A non-empty request body is taken as the complete
// plain-text book; an empty one makes the service fetch it.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	body := r.Body
	if h.maxRequestBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}
	text, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, 0, "reading upload: %v", err))
		return
	}

	resp, err := h.publisher.Ingest(ctx, id, string(text))
	if err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"code":   apperrors.Code(err),
				"fields": verr.Fields,
			})
			return
		}
		log.Error("ingestion failed", "book_id", id, "error", err, "status_code", apperrors.HTTPStatusCode(err))
		h.writeError(w, err)
		return
	}
	log.Info("book ingested", "book_id", id, "status", resp.Status, "index_requested", resp.IndexRequested)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.publisher.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.publisher.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
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
