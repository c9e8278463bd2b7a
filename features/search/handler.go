package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sowflow/features/document"
	"sowflow/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.service.ListDocuments(ctx, r.URL.Query().Get("client"), r.URL.Query().Get("po"))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []document.Record{}
	}
	h.writeData(ctx, w, records, len(records))
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	rec, err := h.service.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get document", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeData(ctx, w, rec, 1)
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	records, err := h.service.ListVersions(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list versions", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []document.Record{}
	}
	h.writeData(ctx, w, records, len(records))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "query is required", http.StatusBadRequest)
		return
	}

	results, err := h.service.Semantic(ctx, req.Query, req.Limit)
	if err != nil {
		slog.ErrorContext(ctx, "semantic search failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []Result{}
	}
	h.writeData(ctx, w, results, len(results))
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, data interface{}, count int) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": data,
		"meta": map[string]int{"count": count},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
