// Package docmeta mirrors the document collaborator's title, classification,
// and metadata so search results can be denormalized without a cross-service
// call. Rows are written at ingestion and removed on document deletion.
package docmeta

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Reserved field names; everything else in the hash is collaborator metadata
// carried as opaque pass-through.
const (
	fieldTitle          = "__title"
	fieldClassification = "__classification"
)

// store is the consumer interface for document metadata (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
}

// Repo implements the document metadata mirror.
type Repo struct {
	store  store
	prefix string
}

// New creates a document metadata repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// Save upserts the metadata mirror row for a document.
func (r *Repo) Save(ctx context.Context, documentID string, meta domain.DocumentMeta) error {
	fields := make(map[string]string, 2+len(meta.Extra))
	fields[fieldTitle] = meta.Title
	fields[fieldClassification] = meta.Classification
	for k, v := range meta.Extra {
		fields[k] = v
	}
	if err := r.store.HSet(ctx, r.docKey(documentID), fields); err != nil {
		return fmt.Errorf("save doc meta %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	return nil
}

// Get returns the metadata mirror row, or domain.ErrDocumentNotFound.
func (r *Repo) Get(ctx context.Context, documentID string) (domain.DocumentMeta, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(documentID))
	if err != nil {
		return domain.DocumentMeta{}, fmt.Errorf("get doc meta %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	if len(m) == 0 {
		return domain.DocumentMeta{}, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentNotFound)
	}

	meta := domain.DocumentMeta{
		Title:          m[fieldTitle],
		Classification: m[fieldClassification],
	}
	for k, v := range m {
		if k == fieldTitle || k == fieldClassification {
			continue
		}
		if meta.Extra == nil {
			meta.Extra = make(map[string]string)
		}
		meta.Extra[k] = v
	}
	return meta, nil
}

// Delete removes the metadata mirror row.
func (r *Repo) Delete(ctx context.Context, documentID string) error {
	if err := r.store.Del(ctx, r.docKey(documentID)); err != nil {
		return fmt.Errorf("delete doc meta %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	return nil
}

func (r *Repo) docKey(documentID string) string {
	return r.prefix + "doc:" + documentID
}
