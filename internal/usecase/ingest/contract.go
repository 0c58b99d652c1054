package ingest

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// ChunkStore persists chunk embeddings. Saves are batched: one call per
// embedded batch, pipelined by the store.
type ChunkStore interface {
	SaveChunks(ctx context.Context, embs []domain.ChunkEmbedding) error
	HasEmbeddings(ctx context.Context, documentID string) (bool, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// JobTracker drives the per-document job state machine.
type JobTracker interface {
	Start(ctx context.Context, documentID string, totalChunks int) (domain.Job, error)
	Advance(ctx context.Context, documentID string, processedChunks int) error
	Complete(ctx context.Context, documentID string) error
	Fail(ctx context.Context, documentID, errorMessage string) error
	Get(ctx context.Context, documentID string) (domain.Job, error)
	ListProcessing(ctx context.Context) ([]domain.Job, error)
}

// MetaStore mirrors the document collaborator's metadata.
type MetaStore interface {
	Save(ctx context.Context, documentID string, meta domain.DocumentMeta) error
	Delete(ctx context.Context, documentID string) error
}

// Embedder vectorizes batches of chunk texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
