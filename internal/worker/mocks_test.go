package worker_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"sowflow/internal/pipeline"
	"sowflow/internal/schema"
	"sowflow/internal/worker"
)

// Mocks

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

// Published decodes the envelope sent to the given topic in call order.
func (m *MockPublisher) Published(i int) *pipeline.Envelope {
	env, err := pipeline.Decode(m.Calls[i].Arguments.Get(1).([]byte))
	if err != nil {
		panic(err)
	}
	return env
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockMirror struct{ mock.Mock }

func (m *MockMirror) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	args := m.Called(ctx, chunk)
	return args.Error(0)
}

func (m *MockMirror) DeleteChunks(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, text string) (*schema.SOWData, float64, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*schema.SOWData), args.Get(1).(float64), args.Error(2)
}

type MockVersionWriter struct{ mock.Mock }

func (m *MockVersionWriter) Persist(ctx context.Context, env *pipeline.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

type MockDeadLetterStore struct{ mock.Mock }

func (m *MockDeadLetterStore) Save(ctx context.Context, topic, stage string, body []byte, reason string, attempts uint16) error {
	args := m.Called(ctx, topic, stage, body, reason, attempts)
	return args.Error(0)
}

func ingress() *pipeline.Envelope {
	return &pipeline.Envelope{
		Version:    pipeline.Version,
		DocumentID: "DOC#11111111-1111-1111-1111-111111111111",
		Source:     pipeline.SourceLocation{Bucket: "docs", Key: "uploads/contract.pdf"},
		Timestamp:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func withText(env *pipeline.Envelope) *pipeline.Envelope {
	env.Text = &pipeline.TextResult{
		TextKey:    "text/" + env.DocumentID + ".txt",
		TextLength: 100,
		PageCount:  1,
	}
	return env
}

func encode(env *pipeline.Envelope) []byte {
	body, err := env.Encode()
	if err != nil {
		panic(err)
	}
	return body
}
