package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LLM wraps a generative model for structured extraction. Sampling is pinned
// low so repeated runs over the same contract produce the same JSON.
type LLM struct {
	client *genai.Client
	model  string
}

func NewLLM(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*LLM, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{client: client, model: model}, nil
}

func (l *LLM) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int32) (string, error) {
	slog.DebugContext(ctx, "generating completion", "model", l.model, "prompt_length", len(prompt))
	gm := l.client.GenerativeModel(l.model)
	gm.SetTemperature(temperature)
	gm.SetTopP(0.95)
	gm.SetTopK(40)
	gm.SetMaxOutputTokens(maxTokens)

	res, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "error", err)
		return "", err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", fmt.Errorf("model returned no candidates")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

func (l *LLM) Close() error {
	return l.client.Close()
}
