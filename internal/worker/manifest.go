package worker

import (
	"fmt"
	"time"
)

// Manifest is written to object storage after every chunk artifact has been
// persisted. Its presence with Embedded >= Chunks is the completion signal
// for the embedding stage: a prefix holding chunk files but no complete
// manifest is an interrupted run and gets redone.
type Manifest struct {
	DocumentID    string    `json:"document_id"`
	Prefix        string    `json:"prefix"`
	Model         string    `json:"model"`
	Chunks        int       `json:"chunks"`
	Embedded      int       `json:"embedded"`
	ContentSHA256 string    `json:"content_sha256"`
	SuccessRatio  float64   `json:"success_ratio"`
	CreatedAt     time.Time `json:"created_at"`
}

// Complete reports whether this manifest marks a finished embedding run.
func (m Manifest) Complete() bool {
	return m.Chunks > 0 && m.Embedded >= m.Chunks
}

func embeddingsPrefix(documentID string) string {
	return fmt.Sprintf("embeddings/%s/", documentID)
}

func manifestKey(documentID string) string {
	return embeddingsPrefix(documentID) + "manifest.json"
}

func chunkKey(documentID string, index int) string {
	return fmt.Sprintf("%s%05d.json", embeddingsPrefix(documentID), index)
}
