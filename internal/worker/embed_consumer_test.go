package worker_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sowflow/internal/adapter/objectstore"
	"sowflow/internal/config"
	"sowflow/internal/pipeline"
	"sowflow/internal/retry"
	"sowflow/internal/worker"
)

func newEmbedConsumer(store objectstore.Store, embedder worker.Embedder, mirror worker.ChunkMirror, pub worker.Publisher) *worker.EmbedConsumer {
	return worker.NewEmbedConsumer(store, embedder, mirror, pub, worker.EmbedConsumerOptions{
		Model:           "gemini-embedding-001",
		ChunkSize:       50,
		ChunkOverlap:    10,
		MinSuccessRatio: 0.95,
		Policy:          retry.Policy{MaxAttempts: 2},
		Timeout:         time.Minute,
	})
}

func putText(t *testing.T, store objectstore.Store, env *pipeline.Envelope, text string) string {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), env.Source.Bucket, env.Text.TextKey, []byte(text)))
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func TestEmbedConsumer_HappyPath(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	putText(t, store, env, strings.Repeat("contract terms and conditions. ", 10))

	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)
	mirror := new(MockMirror)
	mirror.On("DeleteChunks", mock.Anything, env.DocumentID).Return(nil)
	mirror.On("StoreChunk", mock.Anything, mock.Anything).Return(nil)
	pub := new(MockPublisher)
	pub.On("Publish", config.TopicExtract, mock.Anything).Return(nil)

	err := newEmbedConsumer(store, embedder, mirror, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	require.NoError(t, err)

	forwarded := pub.Published(0)
	require.NotNil(t, forwarded.Embedding)
	assert.Greater(t, forwarded.Embedding.ChunksCreated, 1)
	assert.Equal(t, forwarded.Embedding.ChunksCreated, forwarded.Embedding.EmbeddingsPersisted)

	// Chunk artifacts and manifest persisted, manifest is complete.
	keys, err := store.List(context.Background(), env.Source.Bucket, "embeddings/"+env.DocumentID+"/")
	require.NoError(t, err)
	assert.Len(t, keys, forwarded.Embedding.ChunksCreated+1)

	body, err := store.Get(context.Background(), env.Source.Bucket, "embeddings/"+env.DocumentID+"/manifest.json")
	require.NoError(t, err)
	var manifest worker.Manifest
	require.NoError(t, json.Unmarshal(body, &manifest))
	assert.True(t, manifest.Complete())
	assert.Equal(t, 1.0, manifest.SuccessRatio)
}

func TestEmbedConsumer_CompleteManifestSkipsWork(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	sha := putText(t, store, env, strings.Repeat("contract terms and conditions. ", 10))

	manifest, _ := json.Marshal(worker.Manifest{
		DocumentID:    env.DocumentID,
		Prefix:        "embeddings/" + env.DocumentID + "/",
		Chunks:        12,
		Embedded:      12,
		ContentSHA256: sha,
		SuccessRatio:  1.0,
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, store.Put(context.Background(), env.Source.Bucket,
		"embeddings/"+env.DocumentID+"/manifest.json", manifest))

	embedder := new(MockEmbedder)
	pub := new(MockPublisher)
	pub.On("Publish", config.TopicExtract, mock.Anything).Return(nil)

	err := newEmbedConsumer(store, embedder, nil, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	require.NoError(t, err)

	// Zero embedding calls on redelivery of finished work.
	embedder.AssertNotCalled(t, "Embed")
	forwarded := pub.Published(0)
	require.NotNil(t, forwarded.Embedding)
	assert.Equal(t, 12, forwarded.Embedding.ChunksCreated)
}

func TestEmbedConsumer_IncompleteManifestRedoesWork(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	sha := putText(t, store, env, strings.Repeat("contract terms and conditions. ", 10))

	// Manifest from an interrupted run: fewer embedded than chunks.
	manifest, _ := json.Marshal(worker.Manifest{
		DocumentID:    env.DocumentID,
		Chunks:        12,
		Embedded:      7,
		ContentSHA256: sha,
	})
	require.NoError(t, store.Put(context.Background(), env.Source.Bucket,
		"embeddings/"+env.DocumentID+"/manifest.json", manifest))

	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	pub := new(MockPublisher)
	pub.On("Publish", config.TopicExtract, mock.Anything).Return(nil)

	err := newEmbedConsumer(store, embedder, nil, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	require.NoError(t, err)
	embedder.AssertCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestEmbedConsumer_ChangedContentRedoesWork(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	putText(t, store, env, strings.Repeat("new contract text entirely. ", 10))

	manifest, _ := json.Marshal(worker.Manifest{
		DocumentID:    env.DocumentID,
		Chunks:        5,
		Embedded:      5,
		ContentSHA256: "stale-hash",
	})
	require.NoError(t, store.Put(context.Background(), env.Source.Bucket,
		"embeddings/"+env.DocumentID+"/manifest.json", manifest))

	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	pub := new(MockPublisher)
	pub.On("Publish", config.TopicExtract, mock.Anything).Return(nil)

	err := newEmbedConsumer(store, embedder, nil, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	require.NoError(t, err)
	embedder.AssertCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestEmbedConsumer_RatioGuardBlocksManifest(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	putText(t, store, env, strings.Repeat("contract terms and conditions. ", 10))

	// Every embedding call fails, so the ratio floor trips.
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	pub := new(MockPublisher)

	err := newEmbedConsumer(store, embedder, nil, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, pipeline.ErrNonRetryable)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	// No completion signal left behind.
	_, err = store.Get(context.Background(), env.Source.Bucket, "embeddings/"+env.DocumentID+"/manifest.json")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestEmbedConsumer_WhitespaceOnlyTextIsNonRetryable(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	putText(t, store, env, "    \n\t  \n")

	embedder := new(MockEmbedder)
	pub := new(MockPublisher)

	err := newEmbedConsumer(store, embedder, nil, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	assert.ErrorIs(t, err, pipeline.ErrNonRetryable)
	embedder.AssertNotCalled(t, "Embed")
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)

	_, err = store.Get(context.Background(), env.Source.Bucket, "embeddings/"+env.DocumentID+"/manifest.json")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestEmbedConsumer_MirrorFailureIsNotFatal(t *testing.T) {
	env := withText(ingress())
	store := objectstore.NewMemory()
	putText(t, store, env, strings.Repeat("contract terms and conditions. ", 10))

	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	mirror := new(MockMirror)
	mirror.On("DeleteChunks", mock.Anything, mock.Anything).Return(errors.New("weaviate down"))
	mirror.On("StoreChunk", mock.Anything, mock.Anything).Return(errors.New("weaviate down"))
	pub := new(MockPublisher)
	pub.On("Publish", config.TopicExtract, mock.Anything).Return(nil)

	err := newEmbedConsumer(store, embedder, mirror, pub).HandleMessage(&nsq.Message{Body: encode(env)})
	assert.NoError(t, err)
}

func TestEmbedConsumer_MissingTextOutput(t *testing.T) {
	err := newEmbedConsumer(objectstore.NewMemory(), new(MockEmbedder), nil, new(MockPublisher)).
		HandleMessage(&nsq.Message{Body: encode(ingress())})
	assert.ErrorIs(t, err, pipeline.ErrNonRetryable)
}

func TestEmbedConsumer_InvalidJSONAcked(t *testing.T) {
	err := newEmbedConsumer(objectstore.NewMemory(), new(MockEmbedder), nil, new(MockPublisher)).
		HandleMessage(&nsq.Message{Body: []byte("invalid json")})
	assert.NoError(t, err)
}
