package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// RateLimitedEmbedder spaces out successive provider calls. This implements
// the deliberate inter-batch delay during ingestion; it is a throttling
// policy, not a correctness requirement, so tests pass rate.Inf.
type RateLimitedEmbedder struct {
	inner   domain.BatchEmbedder
	limiter *rate.Limiter
}

// NewRateLimited creates a rate-limiting decorator allowing callsPerSecond
// provider calls. callsPerSecond <= 0 disables throttling.
func NewRateLimited(inner domain.BatchEmbedder, callsPerSecond float64) *RateLimitedEmbedder {
	limit := rate.Inf
	if callsPerSecond > 0 {
		limit = rate.Limit(callsPerSecond)
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Embed waits for the limiter, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for the limiter, then delegates.
func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.inner.EmbedBatch(ctx, texts)
}
