// Package search ranks stored chunk embeddings against a query vector by
// cosine similarity: exhaustive linear scan, threshold filter, stable
// descending sort, top-K truncation.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/vector"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

// Config holds search limits.
type Config struct {
	// MaxScan caps how many stored vectors one query considers. A
	// scalability cap on the exhaustive scan, not a semantic guarantee.
	MaxScan          int
	DefaultLimit     int
	DefaultThreshold float64
}

// Service is the similarity search engine.
type Service struct {
	embeddings EmbeddingIterator
	queries    QueryVectors
	embed      Embedder
	meta       MetaReader
	auditor    Auditor
	cfg        Config
	logger     *zap.Logger
}

// New creates a search service. auditor may be nil to disable audit logging.
func New(
	embeddings EmbeddingIterator, queries QueryVectors, embed Embedder,
	meta MetaReader, auditor Auditor, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.MaxScan <= 0 {
		cfg.MaxScan = 10000
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	return &Service{
		embeddings: embeddings,
		queries:    queries,
		embed:      embed,
		meta:       meta,
		auditor:    auditor,
		cfg:        cfg,
		logger:     logger,
	}
}

// DefaultThreshold is the similarity floor used when a caller supplies none.
func (s *Service) DefaultThreshold() float64 {
	return s.cfg.DefaultThreshold
}

// Search returns up to limit results scoring at least threshold, descending
// by similarity, ties kept in scan order. It returns either a complete ranked
// result set or an error, never a silently truncated one.
func (s *Service) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]domain.SearchResult, error) {
	if queryText == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	start := time.Now()

	queryRes, cacheHit, err := s.queries.GetOrCreate(ctx, queryText, s.embed.Embed)
	if err != nil {
		return nil, fmt.Errorf("resolve query vector: %w", err)
	}

	results, scanned, err := s.scan(ctx, queryRes, threshold)
	if err != nil {
		return nil, err
	}

	// Stable sort keeps scan order between equal scores, so results are
	// deterministic for a fixed corpus.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	if err := s.denormalize(ctx, results); err != nil {
		return nil, err
	}

	metrics.SearchScannedVectors.Observe(float64(scanned))
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	s.audit(ctx, queryText, results)

	s.logger.Debug("Search executed",
		zap.Int("scanned", scanned),
		zap.Int("results", len(results)),
		zap.Bool("query_cache_hit", cacheHit),
	)

	return results, nil
}

// scan walks stored vectors, scoring each against the query. Rows embedded by
// a different model are skipped: their scores would be meaningless.
func (s *Service) scan(ctx context.Context, query domain.EmbeddingResult, threshold float64) ([]domain.SearchResult, int, error) {
	var results []domain.SearchResult
	scanned := 0

	err := s.embeddings.IterAll(ctx, func(emb domain.ChunkEmbedding) bool {
		scanned++
		if query.ModelID != "" && emb.ModelID != "" && emb.ModelID != query.ModelID {
			return scanned < s.cfg.MaxScan
		}

		score := vector.Cosine(query.Embedding, emb.Vector)
		if score >= threshold {
			results = append(results, domain.SearchResult{
				DocumentID: emb.DocumentID,
				ChunkIndex: emb.ChunkIndex,
				ChunkText:  emb.ChunkText,
				Score:      score,
			})
		}
		return scanned < s.cfg.MaxScan
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan embeddings: %w", err)
	}

	return results, scanned, nil
}

// denormalize fills in document title/classification/metadata. A missing
// mirror row is tolerated; storage faults surface.
func (s *Service) denormalize(ctx context.Context, results []domain.SearchResult) error {
	metaByDoc := make(map[string]domain.DocumentMeta)
	for i := range results {
		id := results[i].DocumentID
		meta, ok := metaByDoc[id]
		if !ok {
			var err error
			meta, err = s.meta.Get(ctx, id)
			if err != nil {
				if !errors.Is(err, domain.ErrDocumentNotFound) {
					return fmt.Errorf("document meta %s: %w", id, err)
				}
				meta = domain.DocumentMeta{}
			}
			metaByDoc[id] = meta
		}
		results[i].Title = meta.Title
		results[i].Classification = meta.Classification
		results[i].Metadata = meta.Extra
	}
	return nil
}

// audit records the query best-effort; a failed append is logged, never
// returned.
func (s *Service) audit(ctx context.Context, queryText string, results []domain.SearchResult) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, queryText, results); err != nil {
		s.logger.Warn("Failed to record search audit entry", zap.Error(err))
	}
}
