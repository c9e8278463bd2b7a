package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"sowflow/internal/pipeline"
)

// StageHandler is a consumer that knows which pipeline stage it implements.
type StageHandler interface {
	nsq.Handler
	Stage() string
}

// DeadLetterStore parks messages that ran out of options.
type DeadLetterStore interface {
	Save(ctx context.Context, topic, stage string, body []byte, reason string, attempts uint16) error
}

// Guard wraps a stage consumer with dead-letter handling. Non-retryable
// failures and messages that exhausted their redelivery budget are parked
// with their accumulated error history and acked so the queue moves on.
type Guard struct {
	inner       StageHandler
	topic       string
	deadLetters DeadLetterStore
	maxAttempts uint16
}

func NewGuard(inner StageHandler, topic string, deadLetters DeadLetterStore, maxAttempts uint16) *Guard {
	return &Guard{inner: inner, topic: topic, deadLetters: deadLetters, maxAttempts: maxAttempts}
}

func (g *Guard) HandleMessage(m *nsq.Message) error {
	err := g.inner.HandleMessage(m)
	if err == nil {
		return nil
	}

	exhausted := m.Attempts >= g.maxAttempts
	if !errors.Is(err, pipeline.ErrNonRetryable) && !exhausted {
		return err // Requeue
	}

	body := m.Body
	if env, decodeErr := pipeline.Decode(m.Body); decodeErr == nil {
		env.AppendError(g.inner.Stage(), err)
		if encoded, encErr := env.Encode(); encErr == nil {
			body = encoded
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if saveErr := g.deadLetters.Save(ctx, g.topic, g.inner.Stage(), body, err.Error(), m.Attempts); saveErr != nil {
		slog.Error("dead-lettering failed, requeueing",
			"error", saveErr, "stage", g.inner.Stage(), "attempts", m.Attempts)
		return err // Last resort: keep it on the queue
	}

	slog.Error("message dead-lettered", "stage", g.inner.Stage(),
		"topic", g.topic, "attempts", m.Attempts, "reason", err.Error())
	return nil // Ack
}
