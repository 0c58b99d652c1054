// Package embedding decorates the provider client with the retry and
// rate-limit policies the ingestion pipeline depends on.
package embedding

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// BackOffFactory builds a fresh backoff schedule per embedding call. Injected
// so tests can substitute a zero-delay schedule.
type BackOffFactory func() backoff.BackOff

// DefaultBackOff returns the production schedule: exponential from 500ms,
// capped at maxAttempts total attempts.
func DefaultBackOff(maxAttempts int) BackOffFactory {
	return func() backoff.BackOff {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxInterval = 10 * time.Second
		return backoff.WithMaxRetries(exp, uint64(maxAttempts-1))
	}
}

// RetryingEmbedder retries transient provider faults with exponential backoff.
// Exhausted attempts surface the last provider error; non-retryable faults
// (auth, malformed input) pass through immediately.
type RetryingEmbedder struct {
	inner       domain.BatchEmbedder
	newBackOff  BackOffFactory
	maxAttempts int
	logger      *zap.Logger
}

// NewRetrying creates a retrying decorator. maxAttempts <= 0 defaults to 3.
func NewRetrying(inner domain.BatchEmbedder, maxAttempts int, logger *zap.Logger) *RetryingEmbedder {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryingEmbedder{
		inner:       inner,
		newBackOff:  DefaultBackOff(maxAttempts),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// WithBackOff overrides the backoff schedule (tests).
func (r *RetryingEmbedder) WithBackOff(f BackOffFactory) *RetryingEmbedder {
	r.newBackOff = f
	return r
}

// Embed vectorizes one text with retry.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    batch.Embeddings[0],
		ModelID:      batch.ModelID,
		Dimensions:   batch.Dimensions,
		PromptTokens: batch.PromptTokens,
		TotalTokens:  batch.TotalTokens,
	}, nil
}

// EmbedBatch vectorizes a batch, retrying the whole batch on transient faults.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var result domain.BatchEmbeddingResult
	attempt := 0

	op := func() error {
		attempt++
		res, err := r.inner.EmbedBatch(ctx, texts)
		if err != nil {
			if !domain.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			r.logger.Warn("Retryable embedding failure",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.maxAttempts),
				zap.Int("batch_size", len(texts)),
				zap.Error(err),
			)
			return err
		}
		result = res
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(r.newBackOff(), ctx)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return result, nil
}
