package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sowflow/internal/schema"
)

func ingress() *Envelope {
	return &Envelope{
		Version:    Version,
		DocumentID: "DOC#1",
		Source:     SourceLocation{Bucket: "b", Key: "uploads/1.pdf"},
		Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	e := ingress()
	e.Text = &TextResult{TextKey: "text/DOC#1.txt", TextLength: 42, PageCount: 2}

	body, err := e.Encode()
	require.NoError(t, err)

	decoded, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)
}

func TestEnvelope_UnsetNamespacesOmitted(t *testing.T) {
	body, err := ingress().Encode()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.NotContains(t, raw, "text")
	assert.NotContains(t, raw, "embedding")
	assert.NotContains(t, raw, "extraction")
	assert.NotContains(t, raw, "validation")
	assert.NotContains(t, raw, "errors")
}

func TestEnvelope_AppendErrorIsAdditive(t *testing.T) {
	e := ingress()
	e.AppendError("extract-text", errors.New("boom"))
	e.AppendError("chunk-and-embed", errors.New("bang"))

	require.Len(t, e.Errors, 2)
	assert.Equal(t, "extract-text", e.Errors[0].Stage)
	assert.Equal(t, "boom", e.Errors[0].Error)
	assert.Equal(t, "chunk-and-embed", e.Errors[1].Stage)
	assert.False(t, e.Errors[0].Timestamp.IsZero())
}

func TestEnvelope_BoundaryChecks(t *testing.T) {
	t.Run("Missing document id", func(t *testing.T) {
		e := ingress()
		e.DocumentID = ""
		assert.Error(t, e.RequireIngress())
	})

	t.Run("Missing source location", func(t *testing.T) {
		e := ingress()
		e.Source.Key = ""
		assert.Error(t, e.RequireIngress())
	})

	t.Run("Text required before downstream stages", func(t *testing.T) {
		e := ingress()
		assert.Error(t, e.RequireText())
		e.Text = &TextResult{TextKey: "text/DOC#1.txt"}
		assert.NoError(t, e.RequireText())
	})

	t.Run("Extraction required before validation", func(t *testing.T) {
		e := ingress()
		assert.Error(t, e.RequireExtraction())
		e.Extraction = &ExtractionResult{Data: schema.SOWData{ClientName: "ACME"}, Confidence: 0.95}
		assert.NoError(t, e.RequireExtraction())
	})
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	e := ingress()
	e.Version = 99
	body, err := json.Marshal(e)
	require.NoError(t, err)

	_, err = Decode(body)
	assert.Error(t, err)
}

func TestNonRetryable(t *testing.T) {
	base := errors.New("bad config")
	err := NonRetryable(base)
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("stage: %w", err)
	assert.ErrorIs(t, wrapped, ErrNonRetryable)
}

func TestFieldNames_NoBusinessValues(t *testing.T) {
	e := ingress()
	e.ClientName = "Very Secret Client Ltd"
	e.Extraction = &ExtractionResult{Data: schema.SOWData{ClientName: "Very Secret Client Ltd"}}

	names := e.FieldNames()
	assert.Contains(t, names, "client_name")
	assert.Contains(t, names, "extraction")
	for _, n := range names {
		assert.NotContains(t, n, "Secret")
	}
}
