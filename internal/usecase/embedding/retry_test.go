package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// mockBatchEmbedder scripts per-call outcomes.
type mockBatchEmbedder struct {
	errs   []error
	result domain.BatchEmbeddingResult
	calls  int
}

func (m *mockBatchEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: batch.Embeddings[0], ModelID: batch.ModelID}, nil
}

func (m *mockBatchEmbedder) EmbedBatch(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	if m.calls <= len(m.errs) && m.errs[m.calls-1] != nil {
		return domain.BatchEmbeddingResult{}, m.errs[m.calls-1]
	}
	return m.result, nil
}

// zeroBackOff retries immediately, capped at maxAttempts total attempts.
func zeroBackOff(maxAttempts int) BackOffFactory {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1))
	}
}

func retryableErr(msg string) error {
	return domain.NewProviderError(429, msg, true)
}

func fatalErr(msg string) error {
	return domain.NewProviderError(401, msg, false)
}

func TestEmbedBatch_SucceedsFirstAttempt(t *testing.T) {
	mock := &mockBatchEmbedder{
		result: domain.BatchEmbeddingResult{Embeddings: [][]float32{{1}}, ModelID: "m"},
	}
	r := NewRetrying(mock, 3, zap.NewNop()).WithBackOff(zeroBackOff(3))

	res, err := r.EmbedBatch(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
	if res.ModelID != "m" {
		t.Errorf("result = %+v", res)
	}
}

func TestEmbedBatch_RetriesTransientFaults(t *testing.T) {
	mock := &mockBatchEmbedder{
		errs:   []error{retryableErr("rate limited"), retryableErr("rate limited")},
		result: domain.BatchEmbeddingResult{Embeddings: [][]float32{{1}}},
	}
	r := NewRetrying(mock, 3, zap.NewNop()).WithBackOff(zeroBackOff(3))

	if _, err := r.EmbedBatch(context.Background(), []string{"text"}); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if mock.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + success)", mock.calls)
	}
}

func TestEmbedBatch_ExhaustsAttempts(t *testing.T) {
	mock := &mockBatchEmbedder{
		errs: []error{retryableErr("down"), retryableErr("down"), retryableErr("down"), retryableErr("down")},
	}
	r := NewRetrying(mock, 3, zap.NewNop()).WithBackOff(zeroBackOff(3))

	_, err := r.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	if mock.calls != 3 {
		t.Errorf("calls = %d, want exactly 3 attempts", mock.calls)
	}
}

func TestEmbedBatch_PermanentFaultNoRetry(t *testing.T) {
	mock := &mockBatchEmbedder{errs: []error{fatalErr("invalid api key")}}
	r := NewRetrying(mock, 5, zap.NewNop()).WithBackOff(zeroBackOff(5))

	_, err := r.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent fault)", mock.calls)
	}
}

func TestEmbedBatch_ContextCancelled(t *testing.T) {
	mock := &mockBatchEmbedder{errs: []error{retryableErr("down"), retryableErr("down")}}
	r := NewRetrying(mock, 3, zap.NewNop()).WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(0)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.EmbedBatch(ctx, []string{"text"})
	if err == nil {
		t.Fatal("want error after cancellation")
	}
}

func TestEmbed_DelegatesToBatch(t *testing.T) {
	mock := &mockBatchEmbedder{
		result: domain.BatchEmbeddingResult{Embeddings: [][]float32{{0.5, 0.6}}, ModelID: "m", Dimensions: 2},
	}
	r := NewRetrying(mock, 3, zap.NewNop()).WithBackOff(zeroBackOff(3))

	res, err := r.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 2 || res.Embedding[0] != 0.5 {
		t.Errorf("embedding = %v", res.Embedding)
	}
	if res.Dimensions != 2 {
		t.Errorf("dimensions = %d", res.Dimensions)
	}
}

func TestRateLimited_UnlimitedPassthrough(t *testing.T) {
	mock := &mockBatchEmbedder{
		result: domain.BatchEmbeddingResult{Embeddings: [][]float32{{1}}},
	}
	r := NewRateLimited(mock, 0)

	for i := 0; i < 10; i++ {
		if _, err := r.EmbedBatch(context.Background(), []string{"text"}); err != nil {
			t.Fatalf("EmbedBatch: %v", err)
		}
	}
	if mock.calls != 10 {
		t.Errorf("calls = %d, want 10", mock.calls)
	}
}

func TestRateLimited_CancelledContext(t *testing.T) {
	mock := &mockBatchEmbedder{}
	r := NewRateLimited(mock, 0.001)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// First token is available immediately; burn it, then the next call must block.
	_, _ = r.EmbedBatch(context.Background(), []string{"a"})
	if _, err := r.EmbedBatch(ctx, []string{"b"}); err == nil {
		t.Fatal("want error from cancelled wait")
	}
}
