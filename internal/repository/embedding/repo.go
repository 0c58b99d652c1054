// Package embedding persists per-chunk vectors: one hash row per chunk,
// unique on (document_id, chunk_index).
package embedding

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/db"
	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/vector"
)

// iterBatchSize is the number of hash rows fetched per pipelined round-trip
// during a full scan.
const iterBatchSize = 100

// store is the consumer interface for chunk embeddings (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements the embedding store over a hash-based KV backend.
type Repo struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates an embedding repository.
func New(s store, keyPrefix string, logger *zap.Logger) *Repo {
	return &Repo{store: s, prefix: keyPrefix, logger: logger}
}

// SaveChunks upserts a batch of chunk embedding rows in one pipelined write.
// Persistence failures wrap domain.ErrStorage and abort the enclosing
// ingestion job.
func (r *Repo) SaveChunks(ctx context.Context, embs []domain.ChunkEmbedding) error {
	if len(embs) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(embs))
	for i, emb := range embs {
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(emb.DocumentID, emb.ChunkIndex),
			Fields: buildHashFields(emb),
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		first := embs[0]
		return fmt.Errorf("save %d chunks from %s/%d: %w: %w",
			len(embs), first.DocumentID, first.ChunkIndex, domain.ErrStorage, err)
	}
	return nil
}

// HasEmbeddings reports whether any chunk rows exist for the document. Used
// for the idempotent re-ingestion skip.
func (r *Repo) HasEmbeddings(ctx context.Context, documentID string) (bool, error) {
	keys, err := r.store.Scan(ctx, r.docPattern(documentID))
	if err != nil {
		return false, fmt.Errorf("scan embeddings %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	return len(keys) > 0, nil
}

// CountChunks returns the number of stored chunks for a document.
func (r *Repo) CountChunks(ctx context.Context, documentID string) (int, error) {
	keys, err := r.store.Scan(ctx, r.docPattern(documentID))
	if err != nil {
		return 0, fmt.Errorf("scan embeddings %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	return len(keys), nil
}

// DeleteDocument removes every chunk row of a document (cascade on document
// deletion, invoked by the document collaborator boundary).
func (r *Repo) DeleteDocument(ctx context.Context, documentID string) error {
	keys, err := r.store.Scan(ctx, r.docPattern(documentID))
	if err != nil {
		return fmt.Errorf("scan embeddings %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w: %w", key, domain.ErrStorage, err)
		}
	}
	return nil
}

// IterAll streams every stored chunk embedding to fn until fn returns false
// or the scan is exhausted. Restartable: each call runs a fresh scan. Keys are
// sorted so iteration order is stable for a fixed corpus. Rows that fail to
// decode are logged and skipped; one corrupt row must not kill a search.
func (r *Repo) IterAll(ctx context.Context, fn func(domain.ChunkEmbedding) bool) error {
	keys, err := r.store.Scan(ctx, r.prefix+"emb:*")
	if err != nil {
		return fmt.Errorf("scan embeddings: %w: %w", domain.ErrStorage, err)
	}
	sort.Strings(keys)

	for start := 0; start < len(keys); start += iterBatchSize {
		end := start + iterBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		rows, err := r.store.HGetAllMulti(ctx, batch)
		if err != nil {
			return fmt.Errorf("fetch embeddings: %w: %w", domain.ErrStorage, err)
		}

		for i, fields := range rows {
			emb, err := parseHashFields(fields)
			if err != nil {
				r.logger.Warn("Skipping undecodable chunk embedding",
					zap.String("key", batch[i]), zap.Error(err))
				continue
			}
			if !fn(emb) {
				return nil
			}
		}
	}

	return nil
}

func (r *Repo) chunkKey(documentID string, chunkIndex int) string {
	return r.prefix + "emb:" + documentID + ":" + strconv.Itoa(chunkIndex)
}

func (r *Repo) docPattern(documentID string) string {
	return r.prefix + "emb:" + documentID + ":*"
}

// buildHashFields converts a chunk embedding into a flat map for HSET.
func buildHashFields(emb domain.ChunkEmbedding) map[string]string {
	return map[string]string{
		"document_id": emb.DocumentID,
		"chunk_index": strconv.Itoa(emb.ChunkIndex),
		"chunk_text":  emb.ChunkText,
		"vector":      string(vector.Encode(emb.Vector)),
		"model_id":    emb.ModelID,
		"dimensions":  strconv.Itoa(emb.Dimensions),
	}
}

// parseHashFields converts a flat hash map back into a chunk embedding.
// The recorded dimension guards against reading vectors of a different model.
func parseHashFields(m map[string]string) (domain.ChunkEmbedding, error) {
	idx, err := strconv.Atoi(m["chunk_index"])
	if err != nil {
		return domain.ChunkEmbedding{}, fmt.Errorf("chunk_index %q: %w", m["chunk_index"], err)
	}
	dim, err := strconv.Atoi(m["dimensions"])
	if err != nil {
		return domain.ChunkEmbedding{}, fmt.Errorf("dimensions %q: %w", m["dimensions"], err)
	}
	vec, err := vector.Decode([]byte(m["vector"]), dim)
	if err != nil {
		return domain.ChunkEmbedding{}, fmt.Errorf("document %s chunk %d: %w", m["document_id"], idx, err)
	}
	return domain.ChunkEmbedding{
		DocumentID: m["document_id"],
		ChunkIndex: idx,
		ChunkText:  m["chunk_text"],
		Vector:     vec,
		ModelID:    m["model_id"],
		Dimensions: dim,
	}, nil
}
