package search

import (
	"context"
	"errors"
	"fmt"

	"sowflow/features/document"
)

const defaultLimit = 10

// hybridAlpha balances keyword and vector scoring.
const hybridAlpha = 0.5

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, query string, vector []float32, alpha float32, limit int) ([]Result, error)
}

type Service struct {
	repo     document.Repository
	embedder Embedder
	vectors  VectorStore
}

func NewService(repo document.Repository, embedder Embedder, vectors VectorStore) *Service {
	return &Service{repo: repo, embedder: embedder, vectors: vectors}
}

func (s *Service) ListDocuments(ctx context.Context, clientName, poNumber string) ([]document.Record, error) {
	switch {
	case clientName != "":
		return s.repo.ListByClient(ctx, clientName)
	case poNumber != "":
		return s.repo.FindByPONumber(ctx, poNumber)
	default:
		return s.repo.ListLatest(ctx)
	}
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (*document.Record, error) {
	return s.repo.GetLatest(ctx, documentID)
}

func (s *Service) ListVersions(ctx context.Context, documentID string) ([]document.Record, error) {
	return s.repo.ListVersions(ctx, documentID)
}

// Semantic embeds the query and runs a hybrid search over the chunk mirror.
func (s *Service) Semantic(ctx context.Context, query string, limit int) ([]Result, error) {
	if query == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.vectors.Search(ctx, query, vector, hybridAlpha, limit)
}
