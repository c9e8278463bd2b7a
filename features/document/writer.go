package document

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sowflow/internal/pipeline"
)

// Writer turns a fully processed envelope into version-store rows.
//
// The version sort key derives from the envelope's ingress timestamp, so
// persisting the same envelope twice collides on the primary key and the
// second write is a no-op. The LATEST pointer is updated best-effort after
// the version row exists: a failed pointer update is logged and repaired on
// the next successful run, never used to fail the stage.
type Writer struct {
	repo Repository
}

func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

func (w *Writer) Persist(ctx context.Context, env *pipeline.Envelope) error {
	if env.Extraction == nil || env.Validation == nil {
		return pipeline.NonRetryable(fmt.Errorf("envelope for %s is not fully processed", env.DocumentID))
	}

	payload, err := env.Encode()
	if err != nil {
		return pipeline.NonRetryable(err)
	}

	rec := &Record{
		PK:                   env.DocumentID,
		SK:                   VersionSKPrefix + env.Timestamp.UTC().Format(time.RFC3339Nano),
		ClientName:           env.ClientName,
		ValidationPassed:     env.Validation.Passed,
		ExtractionConfidence: env.Extraction.Confidence,
		Payload:              payload,
		CreatedAt:            time.Now().UTC(),
	}
	if env.Extraction.Data.PONumber != nil {
		rec.PONumber = *env.Extraction.Data.PONumber
	}
	if env.Extraction.Data.EndDate != nil {
		rec.EndDate = *env.Extraction.Data.EndDate
	}

	created, err := w.repo.InsertVersion(ctx, rec)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	if !created {
		// Redelivery of an already persisted write. Touching the pointer
		// here could regress LATEST to an older version.
		slog.InfoContext(ctx, "version already persisted", "document_id", env.DocumentID, "sk", rec.SK)
		return nil
	}

	if err := w.repo.UpsertLatest(ctx, rec); err != nil {
		slog.WarnContext(ctx, "updating latest pointer failed",
			"error", err, "document_id", env.DocumentID)
	}
	return nil
}
