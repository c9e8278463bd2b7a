package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nsqio/go-nsq"

	"sowflow/internal/adapter/objectstore"
	"sowflow/internal/config"
	"sowflow/internal/middleware"
	"sowflow/internal/pipeline"
)

// ExtractTextConsumer reads the uploaded PDF from object storage, extracts
// its plain text with page markers and stores it alongside the original.
type ExtractTextConsumer struct {
	store     objectstore.Store
	publisher Publisher
	timeout   time.Duration
}

func NewExtractTextConsumer(store objectstore.Store, publisher Publisher, timeout time.Duration) *ExtractTextConsumer {
	return &ExtractTextConsumer{store: store, publisher: publisher, timeout: timeout}
}

func (h *ExtractTextConsumer) Stage() string { return "extract-text" }

func (h *ExtractTextConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	env, err := pipeline.Decode(m.Body)
	if err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid envelope", "error", err)
		return nil
	}
	if err := env.RequireIngress(); err != nil {
		return pipeline.NonRetryable(err)
	}

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := h.store.Get(ctx, env.Source.Bucket, env.Source.Key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return pipeline.NonRetryable(err)
		}
		slog.ErrorContext(ctx, "fetching document failed", "error", err, "document_id", env.DocumentID)
		return err // Retry
	}

	text, pages, err := extractPDFText(body)
	if err != nil {
		// A malformed document will not fix itself on redelivery.
		return pipeline.NonRetryable(fmt.Errorf("parsing pdf: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return pipeline.NonRetryable(errors.New("document contains no extractable text"))
	}

	textKey := fmt.Sprintf("text/%s.txt", env.DocumentID)
	if err := h.store.Put(ctx, env.Source.Bucket, textKey, []byte(text)); err != nil {
		slog.ErrorContext(ctx, "storing text failed", "error", err, "document_id", env.DocumentID)
		return err // Retry
	}

	env.Text = &pipeline.TextResult{
		TextKey:    textKey,
		TextLength: len(text),
		PageCount:  pages,
	}

	next, err := env.Encode()
	if err != nil {
		return pipeline.NonRetryable(err)
	}
	if err := h.publisher.Publish(config.TopicEmbed, next); err != nil {
		slog.ErrorContext(ctx, "publishing failed", "error", err, "topic", config.TopicEmbed)
		return err // Retry
	}

	slog.InfoContext(ctx, "text extracted", "document_id", env.DocumentID, "pages", pages, "length", len(text))
	return nil
}

func extractPDFText(content []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("extract page %d: %w", i, err)
		}
		fmt.Fprintf(&buf, "\n--- Page %d ---\n", i)
		buf.WriteString(text)
	}
	return buf.String(), numPages, nil
}
