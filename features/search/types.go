// Package search exposes read access to processed documents: latest versions,
// version history, secondary-index lookups and semantic search over the
// embedded chunks.
package search

// Result is one semantic-search hit.
type Result struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}
