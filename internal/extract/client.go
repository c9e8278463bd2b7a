// Package extract turns raw contract text into validated structured data
// using an LLM completion behind a strict schema gate.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"sowflow/internal/pipeline"
	"sowflow/internal/retry"
	"sowflow/internal/schema"
)

// maxPromptRunes caps how much document text goes into the prompt. Contracts
// front-load the commercial terms, so the head of the document is enough.
const maxPromptRunes = 50000

const temperature = 0.1
const maxOutputTokens = 2048

// extractionConfidence is attached to every successful extraction. The model
// does not report calibrated confidence, so this is a fixed placeholder that
// downstream review tooling keys off.
const extractionConfidence = 0.95

const promptTemplate = `You are a contract analysis system. Extract the following fields from this Statement of Work document and respond with ONLY a JSON object, no markdown, no commentary.

Fields:
- client_name: the client company name (string, required)
- contract_value: total contract value as a number, or null
- start_date: contract start date as YYYY-MM-DD, or null
- end_date: contract end date as YYYY-MM-DD, or null
- po_number: purchase order number, or null
- ir35_status: one of "Inside", "Outside", "Not Specified", or null
- day_rates: array of {"role": string, "rate": number, "currency": "GBP"|"USD"|"EUR"} objects
- signatures_present: whether both parties have signed (boolean)

Document text:
%s`

// Completer is the LLM surface the client needs.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int32) (string, error)
}

type Client struct {
	llm       Completer
	validator *schema.Validator
	policy    retry.Policy
}

func NewClient(llm Completer, validator *schema.Validator, policy retry.Policy) *Client {
	return &Client{llm: llm, validator: validator, policy: policy}
}

// Extract prompts the model with the sanitized document text, strips any
// markdown fencing from the reply and validates it against the SOW schema.
// Schema violations are treated as transient: the model gets another chance
// up to the retry budget.
func (c *Client) Extract(ctx context.Context, text string) (*schema.SOWData, float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, pipeline.NonRetryable(errors.New("document text is empty"))
	}
	prompt := fmt.Sprintf(promptTemplate, Sanitize(text))

	var data *schema.SOWData
	err := c.policy.Do(ctx, func() error {
		raw, err := c.llm.Complete(ctx, prompt, temperature, maxOutputTokens)
		if err != nil {
			return fmt.Errorf("llm completion: %w", err)
		}
		data, err = c.validator.Validate([]byte(StripFences(raw)))
		if err != nil {
			var verr *schema.Error
			if errors.As(err, &verr) {
				slog.WarnContext(ctx, "extraction output rejected", "code", verr.Code, "field", verr.Field)
			}
			return fmt.Errorf("schema validation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return data, extractionConfidence, nil
}

// Sanitize strips control characters the model chokes on and truncates the
// text to the prompt budget. Newlines and tabs survive.
func Sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, text)
	runes := []rune(cleaned)
	if len(runes) > maxPromptRunes {
		return string(runes[:maxPromptRunes])
	}
	return cleaned
}

// StripFences unwraps a ```json ... ``` block if the model added one despite
// being told not to.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
