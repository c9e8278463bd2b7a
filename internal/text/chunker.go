package text

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunkParams marks a chunk configuration that can never produce a
// terminating split. It is a startup/configuration fault, not a transient
// one: redelivering the same message will fail the same way.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Chunk splits text into fixed-size windows where each window after the
// first overlaps the previous by exactly overlap characters, bounded by the
// text length at the tail. Whitespace-only windows are dropped.
//
// The split is deterministic and stateless: the same (text, size, overlap)
// always yields the same finite sequence.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size(%d) must be > 0", ErrInvalidChunkParams, size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap(%d) must be > 0 and < size(%d)", ErrInvalidChunkParams, overlap, size)
	}

	// Windowing is over characters, not bytes.
	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}
		start = end - overlap
	}

	return chunks, nil
}
