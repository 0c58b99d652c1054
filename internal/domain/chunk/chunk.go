// Package chunk splits document text into overlapping word-windows, the unit
// of embedding.
package chunk

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Split cuts text into windows of size words, each window starting
// size−overlap words after the previous one. Empty or whitespace-only text
// yields zero chunks. Deterministic for fixed input: re-ingestion of the same
// document reproduces the same chunk sequence.
func Split(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks, nil
}

// Count returns the number of chunks Split would produce for wordCount words:
// ceil(max(0, wordCount−overlap) / (size−overlap)), 0 for empty input.
func Count(wordCount, size, overlap int) (int, error) {
	if err := validate(size, overlap); err != nil {
		return 0, err
	}
	if wordCount <= 0 {
		return 0, nil
	}
	step := size - overlap
	effective := wordCount - overlap
	if effective < 0 {
		effective = 0
	}
	n := (effective + step - 1) / step
	if n == 0 {
		n = 1
	}
	return n, nil
}

// validate rejects parameters that would make the window advance non-positive.
// overlap >= size would never terminate; this is a precondition violation,
// not something to clamp.
func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", size, domain.ErrInvalidChunkParams)
	}
	if overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d: %w", overlap, domain.ErrInvalidChunkParams)
	}
	if overlap >= size {
		return fmt.Errorf("overlap %d must be less than chunk size %d: %w",
			overlap, size, domain.ErrInvalidChunkParams)
	}
	return nil
}
