package search

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// EmbeddingIterator streams stored chunk embeddings. Restartable: every
// Search call runs a fresh scan.
type EmbeddingIterator interface {
	IterAll(ctx context.Context, fn func(domain.ChunkEmbedding) bool) error
}

// QueryVectors resolves a query to its vector, memoized by normalized text.
type QueryVectors interface {
	GetOrCreate(
		ctx context.Context, queryText string,
		generate func(ctx context.Context, text string) (domain.EmbeddingResult, error),
	) (domain.EmbeddingResult, bool, error)
}

// MetaReader denormalizes document title/classification/metadata at query time.
type MetaReader interface {
	Get(ctx context.Context, documentID string) (domain.DocumentMeta, error)
}

// Auditor records executed queries, best-effort.
type Auditor interface {
	Record(ctx context.Context, queryText string, results []domain.SearchResult) error
}

// Embedder vectorizes query text on cache misses.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
