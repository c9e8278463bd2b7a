package worker

import (
	"context"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"sowflow/internal/config"
	"sowflow/internal/middleware"
	"sowflow/internal/pipeline"
	"sowflow/internal/rules"
)

// ValidateConsumer evaluates the business rules over the extracted data.
// Rule failures are an outcome, not an error: the envelope always moves on
// to persistence so reviewers can see what failed.
type ValidateConsumer struct {
	publisher Publisher
}

func NewValidateConsumer(publisher Publisher) *ValidateConsumer {
	return &ValidateConsumer{publisher: publisher}
}

func (h *ValidateConsumer) Stage() string { return "validate" }

func (h *ValidateConsumer) HandleMessage(m *nsq.Message) error {
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

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}

	passed, ruleErrors, warnings := rules.Evaluate(&env.Extraction.Data)
	env.Validation = &pipeline.ValidationResult{
		Passed:   passed,
		Errors:   ruleErrors,
		Warnings: warnings,
	}

	next, err := env.Encode()
	if err != nil {
		return pipeline.NonRetryable(err)
	}
	if err := h.publisher.Publish(config.TopicSave, next); err != nil {
		slog.ErrorContext(ctx, "publishing failed", "error", err, "topic", config.TopicSave)
		return err // Retry
	}

	slog.InfoContext(ctx, "validation evaluated", "document_id", env.DocumentID,
		"passed", passed, "errors", len(ruleErrors), "warnings", len(warnings))
	return nil
}
