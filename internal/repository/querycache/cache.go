// Package querycache memoizes query vectors keyed by a content hash of the
// normalized query text, so repeated searches skip the provider round-trip.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/vector"
)

// store is the consumer interface for the persisted cache (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
}

// hotEntry is the in-process copy of a cached vector.
type hotEntry struct {
	vec     []float32
	modelID string
	dim     int
}

// Cache is the query-vector cache: a persisted hash per entry plus a bounded
// in-process LRU hot layer. The persisted layer has no eviction; the LRU only
// caps per-process memory.
type Cache struct {
	store    store
	hot      *lru.Cache[string, hotEntry]
	prefix   string
	hitTotal *prometheus.CounterVec
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a query cache. hotSize bounds the in-process layer; hitTotal is
// a counter vec with label "result" ("hit"/"miss"), may be nil.
func New(s store, keyPrefix string, hotSize int, hitTotal *prometheus.CounterVec, logger *zap.Logger) (*Cache, error) {
	if hotSize <= 0 {
		hotSize = 512
	}
	hot, err := lru.New[string, hotEntry](hotSize)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{
		store:    s,
		hot:      hot,
		prefix:   keyPrefix,
		hitTotal: hitTotal,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// WithClock overrides the clock (tests).
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// GetOrCreate returns the cached vector for the query, generating and
// persisting it on a miss. Queries differing only by case or surrounding
// whitespace resolve to the same entry. Every hit bumps access_count and
// last_accessed. Cache faults degrade to the generator; they never fail the
// search.
func (c *Cache) GetOrCreate(
	ctx context.Context, queryText string,
	generate func(ctx context.Context, text string) (domain.EmbeddingResult, error),
) (domain.EmbeddingResult, bool, error) {
	hash := HashQuery(queryText)
	key := c.entryKey(hash)

	if entry, ok := c.hot.Get(hash); ok {
		c.touch(ctx, key)
		c.incHit("hit")
		return domain.EmbeddingResult{Embedding: entry.vec, ModelID: entry.modelID, Dimensions: entry.dim}, true, nil
	}

	if entry, ok := c.getPersisted(ctx, key); ok {
		c.hot.Add(hash, entry)
		c.touch(ctx, key)
		c.incHit("hit")
		return domain.EmbeddingResult{Embedding: entry.vec, ModelID: entry.modelID, Dimensions: entry.dim}, true, nil
	}

	c.incHit("miss")

	result, err := generate(ctx, queryText)
	if err != nil {
		return domain.EmbeddingResult{}, false, fmt.Errorf("generate query vector %s: %w", hash[:12], err)
	}

	c.put(ctx, key, queryText, result)
	c.hot.Add(hash, hotEntry{vec: result.Embedding, modelID: result.ModelID, dim: result.Dimensions})

	return result, false, nil
}

// Normalize lower-cases and trims a query before hashing.
func Normalize(queryText string) string {
	return strings.ToLower(strings.TrimSpace(queryText))
}

// HashQuery returns the content hash of the normalized query text.
func HashQuery(queryText string) string {
	h := sha256.Sum256([]byte(Normalize(queryText)))
	return hex.EncodeToString(h[:])
}

func (c *Cache) entryKey(hash string) string {
	return c.prefix + "qcache:" + hash
}

func (c *Cache) getPersisted(ctx context.Context, key string) (hotEntry, bool) {
	m, err := c.store.HGetAll(ctx, key)
	if err != nil {
		c.logger.Warn("Failed to read query cache entry", zap.String("key", key), zap.Error(err))
		return hotEntry{}, false
	}
	if len(m) == 0 {
		return hotEntry{}, false
	}

	dim, err := strconv.Atoi(m["dimensions"])
	if err != nil {
		c.logger.Warn("Corrupt query cache dimensions", zap.String("key", key), zap.Error(err))
		return hotEntry{}, false
	}
	vec, err := vector.Decode([]byte(m["vector"]), dim)
	if err != nil {
		c.logger.Warn("Corrupt query cache vector", zap.String("key", key), zap.Error(err))
		return hotEntry{}, false
	}

	return hotEntry{vec: vec, modelID: m["model_id"], dim: dim}, true
}

func (c *Cache) put(ctx context.Context, key, queryText string, result domain.EmbeddingResult) {
	fields := map[string]string{
		"query_text":    queryText,
		"vector":        string(vector.Encode(result.Embedding)),
		"model_id":      result.ModelID,
		"dimensions":    strconv.Itoa(result.Dimensions),
		"access_count":  "0",
		"last_accessed": c.now().UTC().Format(time.RFC3339Nano),
	}
	if err := c.store.HSet(ctx, key, fields); err != nil {
		c.logger.Warn("Failed to persist query cache entry", zap.String("key", key), zap.Error(err))
	}
}

// touch bumps the hit counters on the persisted entry, best-effort.
func (c *Cache) touch(ctx context.Context, key string) {
	if _, err := c.store.HIncrBy(ctx, key, "access_count", 1); err != nil {
		c.logger.Warn("Failed to bump query cache access count", zap.String("key", key), zap.Error(err))
		return
	}
	fields := map[string]string{"last_accessed": c.now().UTC().Format(time.RFC3339Nano)}
	if err := c.store.HSet(ctx, key, fields); err != nil {
		c.logger.Warn("Failed to update query cache last_accessed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incHit(result string) {
	if c.hitTotal != nil {
		c.hitTotal.WithLabelValues(result).Inc()
	}
}
