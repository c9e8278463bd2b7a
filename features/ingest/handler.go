// Package ingest accepts contract uploads and starts the processing
// pipeline. The uploaded PDF is stored first; only then is the ingress
// envelope published, so a consumer never races a missing object.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sowflow/internal/adapter/objectstore"
	"sowflow/internal/config"
	"sowflow/internal/middleware"
	"sowflow/internal/pipeline"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Handler struct {
	store          objectstore.Store
	pub            EventPublisher
	bucket         string
	maxUploadBytes int64
}

func NewHandler(store objectstore.Store, pub EventPublisher, bucket string, maxUploadBytes int64) *Handler {
	return &Handler{store: store, pub: pub, bucket: bucket, maxUploadBytes: maxUploadBytes}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "could not parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		h.writeError(ctx, w, "UNSUPPORTED_TYPE", "only PDF documents are accepted", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(file)
	if err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "could not read upload", http.StatusBadRequest)
		return
	}

	documentID := "DOC#" + uuid.NewString()
	key := fmt.Sprintf("uploads/%s/%s", documentID, filename)

	if err := h.store.Put(ctx, h.bucket, key, body); err != nil {
		slog.ErrorContext(ctx, "storing upload failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "could not store document", http.StatusInternalServerError)
		return
	}

	env := &pipeline.Envelope{
		Version:       pipeline.Version,
		DocumentID:    documentID,
		Source:        pipeline.SourceLocation{Bucket: h.bucket, Key: key},
		ClientName:    r.FormValue("client_name"),
		UploadedBy:    r.FormValue("uploaded_by"),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
	encoded, err := env.Encode()
	if err != nil {
		h.writeError(ctx, w, "INTERNAL_ERROR", "could not encode message", http.StatusInternalServerError)
		return
	}
	if err := h.pub.Publish(config.TopicExtractText, encoded); err != nil {
		slog.ErrorContext(ctx, "publishing ingress message failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "could not queue document", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "document accepted", "document_id", documentID, "size", len(body), "correlationId", correlationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{
		"data": map[string]string{
			"document_id": documentID,
			"status":      "processing",
		},
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
