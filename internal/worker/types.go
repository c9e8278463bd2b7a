// Package worker contains the queue consumers that move a document through
// the pipeline: text extraction, chunking and embedding, structured
// extraction, rule validation and persistence.
package worker

import (
	"context"

	"sowflow/internal/pipeline"
	"sowflow/internal/schema"
)

// Chunk is one embedded window of document text, mirrored into the vector
// store for semantic search.
type Chunk struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Vector     []float32
}

// Publisher forwards an envelope to the next stage topic.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Embedder produces one vector per chunk of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkMirror is the optional vector-store copy of the embedding artifacts.
// Mirror failures never fail the stage: object storage stays the source of
// truth.
type ChunkMirror interface {
	StoreChunk(ctx context.Context, chunk Chunk) error
	DeleteChunks(ctx context.Context, documentID string) error
}

// Extractor turns document text into validated structured data plus a
// confidence score.
type Extractor interface {
	Extract(ctx context.Context, text string) (*schema.SOWData, float64, error)
}

// VersionWriter persists a fully processed envelope as an immutable document
// version.
type VersionWriter interface {
	Persist(ctx context.Context, env *pipeline.Envelope) error
}
