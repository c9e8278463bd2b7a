package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"sowflow/internal/adapter/objectstore"
	"sowflow/internal/config"
	"sowflow/internal/middleware"
	"sowflow/internal/pipeline"
)

// ExtractConsumer runs structured extraction over the stored document text
// and attaches the result to the envelope.
type ExtractConsumer struct {
	store     objectstore.Store
	extractor Extractor
	publisher Publisher
	timeout   time.Duration
}

func NewExtractConsumer(store objectstore.Store, extractor Extractor, publisher Publisher, timeout time.Duration) *ExtractConsumer {
	return &ExtractConsumer{store: store, extractor: extractor, publisher: publisher, timeout: timeout}
}

func (h *ExtractConsumer) Stage() string { return "extract-structured" }

func (h *ExtractConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	env, err := pipeline.Decode(m.Body)
	if err != nil {
		slog.Error("poison pill: invalid envelope", "error", err)
		return nil
	}
	if err := env.RequireText(); err != nil {
		return pipeline.NonRetryable(err)
	}

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := h.store.Get(ctx, env.Source.Bucket, env.Text.TextKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return pipeline.NonRetryable(err)
		}
		return err // Retry
	}

	data, confidence, err := h.extractor.Extract(ctx, string(body))
	if err != nil {
		slog.ErrorContext(ctx, "structured extraction failed", "error", err, "document_id", env.DocumentID)
		return err
	}

	env.Extraction = &pipeline.ExtractionResult{Data: *data, Confidence: confidence}
	if env.ClientName == "" {
		env.ClientName = data.ClientName
	}

	next, err := env.Encode()
	if err != nil {
		return pipeline.NonRetryable(err)
	}
	if err := h.publisher.Publish(config.TopicValidate, next); err != nil {
		slog.ErrorContext(ctx, "publishing failed", "error", err, "topic", config.TopicValidate)
		return err // Retry
	}

	slog.InfoContext(ctx, "structured data extracted", "document_id", env.DocumentID, "confidence", confidence)
	return nil
}
