package search

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sowflow/features/document"
)

func TestHandler_ListDocuments(t *testing.T) {
	t.Run("Lists latest", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("ListLatest", mock.Anything).Return([]document.Record{
			{PK: "DOC#1", SK: document.LatestSK, ClientName: "ACME Corp", Payload: json.RawMessage(`{}`)},
		}, nil)

		h := NewHandler(NewService(repo, nil, nil))
		rec := httptest.NewRecorder()
		h.ListDocuments(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ACME Corp")
	})

	t.Run("Client query param filters", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("ListByClient", mock.Anything, "ACME Corp").Return([]document.Record{}, nil)

		h := NewHandler(NewService(repo, nil, nil))
		rec := httptest.NewRecorder()
		h.ListDocuments(rec, httptest.NewRequest(http.MethodGet, "/documents?client=ACME+Corp", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"data":[]`)
		repo.AssertExpectations(t)
	})
}

func TestHandler_GetDocument(t *testing.T) {
	newRequest := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		req.SetPathValue("id", id)
		return req
	}

	t.Run("Found", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("GetLatest", mock.Anything, "DOC#1").Return(&document.Record{
			PK: "DOC#1", SK: document.LatestSK, Payload: json.RawMessage(`{}`),
		}, nil)

		h := NewHandler(NewService(repo, nil, nil))
		rec := httptest.NewRecorder()
		h.GetDocument(rec, newRequest("DOC#1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Not found", func(t *testing.T) {
		repo := new(MockRepo)
		repo.On("GetLatest", mock.Anything, "DOC#nope").Return(nil, document.ErrNotFound)

		h := NewHandler(NewService(repo, nil, nil))
		rec := httptest.NewRecorder()
		h.GetDocument(rec, newRequest("DOC#nope"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestHandler_Search(t *testing.T) {
	t.Run("Returns hits", func(t *testing.T) {
		embedder := new(MockEmbedder)
		vectors := new(MockVectorStore)
		embedder.On("Embed", mock.Anything, "liability").Return([]float32{0.1}, nil)
		vectors.On("Search", mock.Anything, "liability", mock.Anything, mock.Anything, 3).
			Return([]Result{{DocumentID: "DOC#1", Content: "limitation of liability", Score: 0.8}}, nil)

		h := NewHandler(NewService(new(MockRepo), embedder, vectors))
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"liability","limit":3}`))
		h.Search(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "limitation of liability")
	})

	t.Run("Missing query", func(t *testing.T) {
		h := NewHandler(NewService(new(MockRepo), new(MockEmbedder), new(MockVectorStore)))
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"limit":3}`))
		h.Search(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Invalid body", func(t *testing.T) {
		h := NewHandler(NewService(new(MockRepo), new(MockEmbedder), new(MockVectorStore)))
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`not json`))
		h.Search(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
