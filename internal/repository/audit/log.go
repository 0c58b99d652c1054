// Package audit keeps a capped, append-only log of similarity queries for
// offline diagnostics. Writes are best-effort: a failed append never fails
// the search that produced it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Hit is one ranked result recorded with a query.
type Hit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Entry is one audit log row.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	QueryText   string    `json:"query_text"`
	ResultCount int       `json:"result_count"`
	Hits        []Hit     `json:"hits"`
}

// store is the consumer interface for the audit log (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
}

// Log is the capped search audit log.
type Log struct {
	store   store
	key     string
	maxSize int64
	now     func() time.Time
}

// New creates an audit log keeping at most maxSize entries.
func New(s store, keyPrefix string, maxSize int) *Log {
	return &Log{
		store:   s,
		key:     keyPrefix + "audit:search",
		maxSize: int64(maxSize),
		now:     time.Now,
	}
}

// Record appends one query with its ranked results and trims the log to its
// cap. The caller treats any returned error as log-and-continue.
func (l *Log) Record(ctx context.Context, queryText string, results []domain.SearchResult) error {
	entry := Entry{
		ID:          uuid.NewString(),
		Timestamp:   l.now().UTC(),
		QueryText:   queryText,
		ResultCount: len(results),
		Hits:        make([]Hit, len(results)),
	}
	for i, r := range results {
		entry.Hits[i] = Hit{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex, Score: r.Score}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	if err := l.store.RPush(ctx, l.key, data); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if l.maxSize > 0 {
		if err := l.store.LTrim(ctx, l.key, -l.maxSize, -1); err != nil {
			return fmt.Errorf("trim audit log: %w", err)
		}
	}
	return nil
}

// Recent returns the latest n entries, newest last.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := l.store.LRange(ctx, l.key, int64(-n), -1)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, data := range raw {
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
