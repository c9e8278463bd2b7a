// Package pipeline defines the message contract between processing stages.
//
// The envelope only ever grows: each stage owns exactly one output namespace
// and must never touch fields written by earlier stages. Stage failures
// accumulate in an append-only error list so a dead-lettered message carries
// its full history.
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"sowflow/internal/rules"
	"sowflow/internal/schema"
)

// Version tags the envelope wire format. Consumers drop messages with a
// version they do not understand instead of guessing.
const Version = 1

// SourceLocation points at the original uploaded document. Immutable after
// ingress.
type SourceLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// StageError is one accumulated processing failure.
type StageError struct {
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// TextResult is the extract-text stage's output namespace.
type TextResult struct {
	TextKey    string `json:"text_key"`
	TextLength int    `json:"text_length"`
	PageCount  int    `json:"page_count"`
}

// EmbeddingResult references the embedding artifacts in object storage. It
// carries only the manifest prefix and summary counts, never vectors or
// chunk text.
type EmbeddingResult struct {
	Prefix              string `json:"embeddings_prefix"`
	ChunksCreated       int    `json:"chunks_created"`
	EmbeddingsPersisted int    `json:"embeddings_persisted"`
}

// ExtractionResult is the structured-extraction stage's output namespace.
type ExtractionResult struct {
	Data       schema.SOWData `json:"structured_data"`
	Confidence float64        `json:"extraction_confidence"`
}

// ValidationResult is the rule-validation stage's output namespace. A failed
// validation is a computed outcome, not a stage failure: the envelope keeps
// flowing so the document is persisted for review.
type ValidationResult struct {
	Passed   bool              `json:"validation_passed"`
	Errors   []rules.Violation `json:"validation_errors"`
	Warnings []rules.Violation `json:"validation_warnings"`
}

// Envelope is the unit of work flowing through the pipeline.
type Envelope struct {
	Version    int            `json:"envelope_version"`
	DocumentID string         `json:"document_id"`
	Source     SourceLocation `json:"source_location"`
	ClientName string         `json:"client_name,omitempty"`
	UploadedBy string         `json:"uploaded_by,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`

	CorrelationID string `json:"correlation_id,omitempty"`

	// Stage output namespaces, set once by their owning stage.
	Text       *TextResult       `json:"text,omitempty"`
	Embedding  *EmbeddingResult  `json:"embedding,omitempty"`
	Extraction *ExtractionResult `json:"extraction,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`

	// Errors is append-only and never cleared.
	Errors []StageError `json:"errors,omitempty"`
}

// AppendError records a stage failure without disturbing anything else.
func (e *Envelope) AppendError(stage string, err error) {
	e.Errors = append(e.Errors, StageError{
		Stage:     stage,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// RequireIngress checks the fields assigned once at ingress. A message
// without them is malformed beyond repair.
func (e *Envelope) RequireIngress() error {
	if e.DocumentID == "" {
		return fmt.Errorf("envelope missing document_id")
	}
	if e.Source.Bucket == "" || e.Source.Key == "" {
		return fmt.Errorf("envelope missing source_location")
	}
	return nil
}

// RequireText checks that the extract-text stage has committed its output.
func (e *Envelope) RequireText() error {
	if err := e.RequireIngress(); err != nil {
		return err
	}
	if e.Text == nil || e.Text.TextKey == "" {
		return fmt.Errorf("envelope missing text output")
	}
	return nil
}

// RequireExtraction checks that structured data has been attached.
func (e *Envelope) RequireExtraction() error {
	if err := e.RequireIngress(); err != nil {
		return err
	}
	if e.Extraction == nil {
		return fmt.Errorf("envelope missing extraction output")
	}
	return nil
}

// Decode parses a wire message into an envelope, rejecting unknown envelope
// versions.
func Decode(body []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	if e.Version != Version {
		return nil, fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	return &e, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// FieldNames lists the populated top-level namespaces. Stages log this
// instead of the payload so no business values reach the logs.
func (e *Envelope) FieldNames() []string {
	names := []string{"document_id", "source_location", "timestamp"}
	if e.ClientName != "" {
		names = append(names, "client_name")
	}
	if e.Text != nil {
		names = append(names, "text")
	}
	if e.Embedding != nil {
		names = append(names, "embedding")
	}
	if e.Extraction != nil {
		names = append(names, "extraction")
	}
	if e.Validation != nil {
		names = append(names, "validation")
	}
	if len(e.Errors) > 0 {
		names = append(names, "errors")
	}
	return names
}
