package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"sowflow/internal/middleware"
	"sowflow/internal/pipeline"
)

// SaveConsumer persists the fully processed envelope as an immutable
// document version. This is the terminal stage.
type SaveConsumer struct {
	writer  VersionWriter
	timeout time.Duration
}

func NewSaveConsumer(writer VersionWriter, timeout time.Duration) *SaveConsumer {
	return &SaveConsumer{writer: writer, timeout: timeout}
}

func (h *SaveConsumer) Stage() string { return "save" }

func (h *SaveConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	env, err := pipeline.Decode(m.Body)
	if err != nil {
		slog.Error("poison pill: invalid envelope", "error", err)
		return nil
	}
	if err := env.RequireExtraction(); err != nil {
		return pipeline.NonRetryable(err)
	}
	if env.Validation == nil {
		return pipeline.NonRetryable(errors.New("envelope missing validation output"))
	}

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.writer.Persist(ctx, env); err != nil {
		slog.ErrorContext(ctx, "persisting version failed", "error", err, "document_id", env.DocumentID)
		return err // Retry
	}

	slog.InfoContext(ctx, "document version saved", "document_id", env.DocumentID,
		"validation_passed", env.Validation.Passed)
	return nil
}
