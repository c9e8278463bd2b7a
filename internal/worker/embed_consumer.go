package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"sowflow/internal/adapter/objectstore"
	"sowflow/internal/config"
	"sowflow/internal/middleware"
	"sowflow/internal/pipeline"
	"sowflow/internal/retry"
	"sowflow/internal/text"
)

// chunkArtifact is the per-chunk JSON object persisted under the embeddings
// prefix. Vectors live here and in the vector mirror, never on the envelope.
type chunkArtifact struct {
	DocumentID  string    `json:"document_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	ChunkSHA256 string    `json:"chunk_sha256"`
	Vector      []float32 `json:"vector"`
	Model       string    `json:"model"`
}

// EmbedConsumer chunks the extracted text and persists one embedding
// artifact per chunk, finishing with a manifest. The manifest is written
// last so an interrupted run leaves no completion signal behind.
type EmbedConsumer struct {
	store     objectstore.Store
	embedder  Embedder
	mirror    ChunkMirror
	publisher Publisher

	model           string
	chunkSize       int
	chunkOverlap    int
	minSuccessRatio float64
	policy          retry.Policy
	timeout         time.Duration
}

type EmbedConsumerOptions struct {
	Model           string
	ChunkSize       int
	ChunkOverlap    int
	MinSuccessRatio float64
	Policy          retry.Policy
	Timeout         time.Duration
}

func NewEmbedConsumer(store objectstore.Store, embedder Embedder, mirror ChunkMirror, publisher Publisher, opts EmbedConsumerOptions) *EmbedConsumer {
	return &EmbedConsumer{
		store:           store,
		embedder:        embedder,
		mirror:          mirror,
		publisher:       publisher,
		model:           opts.Model,
		chunkSize:       opts.ChunkSize,
		chunkOverlap:    opts.ChunkOverlap,
		minSuccessRatio: opts.MinSuccessRatio,
		policy:          opts.Policy,
		timeout:         opts.Timeout,
	}
}

func (h *EmbedConsumer) Stage() string { return "chunk-and-embed" }

func (h *EmbedConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	env, err := pipeline.Decode(m.Body)
	if err != nil {
		slog.Error("poison pill: invalid envelope", "error", err)
		return nil
	}
	if err := env.RequireText(); err != nil {
		return pipeline.NonRetryable(err)
	}

	ctx := context.Background()
	if env.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, env.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := h.store.Get(ctx, env.Source.Bucket, env.Text.TextKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return pipeline.NonRetryable(err)
		}
		return err // Retry
	}
	contentHash := sha256.Sum256(body)
	contentSHA := hex.EncodeToString(contentHash[:])

	// Redelivery check: a complete manifest for the same content means the
	// work is already done. Forward without a single embedding call.
	if manifest, ok := h.loadManifest(ctx, env); ok && manifest.Complete() && manifest.ContentSHA256 == contentSHA {
		slog.InfoContext(ctx, "embeddings already complete, skipping",
			"document_id", env.DocumentID, "chunks", manifest.Chunks)
		env.Embedding = &pipeline.EmbeddingResult{
			Prefix:              manifest.Prefix,
			ChunksCreated:       manifest.Chunks,
			EmbeddingsPersisted: manifest.Embedded,
		}
		return h.forward(ctx, env)
	}

	chunks, err := text.Chunk(string(body), h.chunkSize, h.chunkOverlap)
	if err != nil {
		return pipeline.NonRetryable(err)
	}
	if len(chunks) == 0 {
		// Whitespace-only text yields no windows. Redelivery cannot help.
		return pipeline.NonRetryable(fmt.Errorf("no chunks produced from %d bytes of text", len(body)))
	}

	// Stale mirror entries from a previous partial run would double up.
	if h.mirror != nil {
		if err := h.mirror.DeleteChunks(ctx, env.DocumentID); err != nil {
			slog.WarnContext(ctx, "clearing vector mirror failed", "error", err, "document_id", env.DocumentID)
		}
	}

	embedded := 0
	for i, content := range chunks {
		var vector []float32
		err := h.policy.Do(ctx, func() error {
			var embedErr error
			vector, embedErr = h.embedder.Embed(ctx, content)
			return embedErr
		})
		if err != nil {
			slog.WarnContext(ctx, "chunk embedding failed", "error", err,
				"document_id", env.DocumentID, "chunk_index", i)
			continue
		}

		chunkHash := sha256.Sum256([]byte(content))
		artifact, err := json.Marshal(chunkArtifact{
			DocumentID:  env.DocumentID,
			ChunkIndex:  i,
			Content:     content,
			ChunkSHA256: hex.EncodeToString(chunkHash[:]),
			Vector:      vector,
			Model:       h.model,
		})
		if err != nil {
			return pipeline.NonRetryable(err)
		}
		if err := h.store.Put(ctx, env.Source.Bucket, chunkKey(env.DocumentID, i), artifact); err != nil {
			slog.ErrorContext(ctx, "persisting chunk failed", "error", err,
				"document_id", env.DocumentID, "chunk_index", i)
			return err // Retry the whole stage
		}
		embedded++

		if h.mirror != nil {
			if err := h.mirror.StoreChunk(ctx, Chunk{
				DocumentID: env.DocumentID,
				ChunkIndex: i,
				Content:    content,
				Vector:     vector,
			}); err != nil {
				slog.WarnContext(ctx, "mirroring chunk failed", "error", err,
					"document_id", env.DocumentID, "chunk_index", i)
			}
		}
	}

	ratio := float64(embedded) / float64(len(chunks))
	if ratio < h.minSuccessRatio {
		return fmt.Errorf("embedded %d of %d chunks, below required ratio %.2f",
			embedded, len(chunks), h.minSuccessRatio)
	}

	// Manifest goes last: its presence is the completion signal.
	manifest, err := json.Marshal(Manifest{
		DocumentID:    env.DocumentID,
		Prefix:        embeddingsPrefix(env.DocumentID),
		Model:         h.model,
		Chunks:        len(chunks),
		Embedded:      embedded,
		ContentSHA256: contentSHA,
		SuccessRatio:  ratio,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return pipeline.NonRetryable(err)
	}
	if err := h.store.Put(ctx, env.Source.Bucket, manifestKey(env.DocumentID), manifest); err != nil {
		return err // Retry
	}

	env.Embedding = &pipeline.EmbeddingResult{
		Prefix:              embeddingsPrefix(env.DocumentID),
		ChunksCreated:       len(chunks),
		EmbeddingsPersisted: embedded,
	}

	slog.InfoContext(ctx, "embeddings persisted", "document_id", env.DocumentID,
		"chunks", len(chunks), "embedded", embedded)
	return h.forward(ctx, env)
}

func (h *EmbedConsumer) loadManifest(ctx context.Context, env *pipeline.Envelope) (Manifest, bool) {
	body, err := h.store.Get(ctx, env.Source.Bucket, manifestKey(env.DocumentID))
	if err != nil {
		return Manifest{}, false
	}
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		slog.WarnContext(ctx, "unreadable manifest, redoing embeddings",
			"error", err, "document_id", env.DocumentID)
		return Manifest{}, false
	}
	return m, true
}

func (h *EmbedConsumer) forward(ctx context.Context, env *pipeline.Envelope) error {
	next, err := env.Encode()
	if err != nil {
		return pipeline.NonRetryable(err)
	}
	if err := h.publisher.Publish(config.TopicExtract, next); err != nil {
		slog.ErrorContext(ctx, "publishing failed", "error", err, "topic", config.TopicExtract)
		return err // Retry
	}
	return nil
}
