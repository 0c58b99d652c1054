package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single provider call.
// The returned vectors have the same length and order as the input.
type BatchEmbedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries one embedding vector, the model that produced it,
// and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	ModelID      string
	Dimensions   int
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	ModelID      string
	Dimensions   int
	PromptTokens int
	TotalTokens  int
}
