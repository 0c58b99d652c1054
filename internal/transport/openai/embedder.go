// Package openai calls the external embedding capability through the
// OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

// Embedder is a stateless embedding provider client. A batch is one atomic
// provider call: either every input vector comes back, in input order, or the
// whole call fails.
type Embedder struct {
	client        *openai.Client
	model         openai.EmbeddingModel
	dimensions    int
	maxInputChars int
	logger        *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	MaxInputChars int
	Logger        *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider client.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         openai.EmbeddingModel(cfg.Model),
		dimensions:    cfg.Dimensions,
		maxInputChars: cfg.MaxInputChars,
		logger:        cfg.Logger,
	}
}

// Embed vectorizes a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := e.EmbedBatch(ctx, []string{text})
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

// EmbedBatch implements domain.BatchEmbedder. Inputs longer than the provider
// maximum are truncated before submission; truncation is logged and counted,
// never an error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{ModelID: string(e.model), Dimensions: e.dimensions}, nil
	}

	req := openai.EmbeddingRequest{
		Input:          e.truncateAll(texts),
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "api_error").Inc()
		return domain.BatchEmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "length_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, domain.NewProviderError(0,
			fmt.Sprintf("provider returned %d vectors for %d inputs", len(resp.Data), len(texts)),
			false)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(string(e.model)).Observe(duration.Seconds())

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}

	dim := e.dimensions
	if dim == 0 && len(embeddings[0]) > 0 {
		dim = len(embeddings[0])
	}

	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		ModelID:      string(e.model),
		Dimensions:   dim,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// truncateAll bounds each input to maxInputChars, cutting on a rune boundary
// so a multi-byte character is never split.
func (e *Embedder) truncateAll(texts []string) []string {
	if e.maxInputChars <= 0 {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > e.maxInputChars {
			metrics.EmbeddingTruncationsTotal.WithLabelValues(string(e.model)).Inc()
			e.logger.Warn("Truncating embedding input",
				zap.Int("index", i),
				zap.Int("length", len(t)),
				zap.Int("max", e.maxInputChars),
			)
			t = truncateAtRune(t, e.maxInputChars)
		}
		out[i] = t
	}
	return out
}

func truncateAtRune(s string, max int) string {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// parseAPIError converts an API failure into a domain.ProviderError with a
// retryability classification: timeouts, rate limits and 5xx retry; auth and
// malformed-input failures do not.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return domain.NewProviderError(reqErr.HTTPStatusCode, detail, retryableStatus(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderError(apiErr.HTTPStatusCode, apiErr.Message, retryableStatus(apiErr.HTTPStatusCode))
	}

	// Transport-level failure (connection reset, timeout): worth retrying.
	return domain.NewProviderError(0, err.Error(), true)
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
