package docmeta

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/semdex/internal/domain"
)

type fakeStore struct {
	hashes  map[string]map[string]string
	hsetErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.hsetErr != nil {
		return f.hsetErr
	}
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = v
	}
	f.hashes[key] = h
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	h := f.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.hashes, key)
	return nil
}

func TestSaveGet_RoundTrip(t *testing.T) {
	r := New(newFakeStore(), "semdex:")
	ctx := context.Background()

	meta := domain.DocumentMeta{
		Title:          "Quarterly Report",
		Classification: "internal",
		Extra:          map[string]string{"author": "ops", "year": "2026"},
	}
	if err := r.Save(ctx, "doc-1", meta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := r.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != meta.Title || got.Classification != meta.Classification {
		t.Errorf("got %+v", got)
	}
	if got.Extra["author"] != "ops" || got.Extra["year"] != "2026" {
		t.Errorf("extra = %v", got.Extra)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := New(newFakeStore(), "semdex:")
	_, err := r.Get(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestSave_StorageError(t *testing.T) {
	fs := newFakeStore()
	fs.hsetErr = errors.New("write refused")
	r := New(fs, "semdex:")

	err := r.Save(context.Background(), "doc-1", domain.DocumentMeta{Title: "x"})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
}

func TestDelete(t *testing.T) {
	r := New(newFakeStore(), "semdex:")
	ctx := context.Background()

	if err := r.Save(ctx, "doc-1", domain.DocumentMeta{Title: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := r.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(ctx, "doc-1"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
}

func TestExtraFieldNamedLikeReserved(t *testing.T) {
	r := New(newFakeStore(), "semdex:")
	ctx := context.Background()

	// Collaborator metadata keys never collide with reserved field names.
	meta := domain.DocumentMeta{
		Title: "Title",
		Extra: map[string]string{"title": "lowercase is not reserved"},
	}
	if err := r.Save(ctx, "doc-1", meta); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := r.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Title" || got.Extra["title"] != "lowercase is not reserved" {
		t.Errorf("got %+v", got)
	}
}
