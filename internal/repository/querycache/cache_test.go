package querycache

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// fakeStore is an in-memory hash store with error injection.
type fakeStore struct {
	hashes map[string]map[string]string

	hsetErr    error
	hgetAllErr error
	hsetCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.hsetCalls++
	if f.hsetErr != nil {
		return f.hsetErr
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.hgetAllErr != nil {
		return nil, f.hgetAllErr
	}
	h := f.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HIncrBy(_ context.Context, key, field string, incr int64) (int64, error) {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	cur += incr
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func newTestCache(t *testing.T, fs *fakeStore) *Cache {
	t.Helper()
	c, err := New(fs, "semdex:", 16, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func staticGenerator(vec []float32) func(context.Context, string) (domain.EmbeddingResult, error) {
	return func(_ context.Context, _ string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embedding: vec, ModelID: "test-model", Dimensions: len(vec)}, nil
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello World", "hello world"},
		{"  hello world  ", "hello world"},
		{"\tHELLO WORLD\n", "hello world"},
		{"hello world", "hello world"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHashQuery_NormalizedVariantsCollide(t *testing.T) {
	base := HashQuery("climate change impact")
	for _, variant := range []string{"Climate Change Impact", "  climate change impact  ", "CLIMATE CHANGE IMPACT\n"} {
		if HashQuery(variant) != base {
			t.Errorf("HashQuery(%q) differs from normalized base", variant)
		}
	}
	if HashQuery("climate  change impact") == base {
		t.Error("inner whitespace variant should hash differently")
	}
}

func TestGetOrCreate_MissGeneratesAndPersists(t *testing.T) {
	fs := newFakeStore()
	c := newTestCache(t, fs)
	ctx := context.Background()

	calls := 0
	gen := func(ctx context.Context, text string) (domain.EmbeddingResult, error) {
		calls++
		return staticGenerator([]float32{0.1, 0.2})(ctx, text)
	}

	res, hit, err := c.GetOrCreate(ctx, "some query", gen)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if hit {
		t.Error("first call reported a hit")
	}
	if calls != 1 {
		t.Errorf("generator called %d times, want 1", calls)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("embedding = %v", res.Embedding)
	}

	key := "semdex:qcache:" + HashQuery("some query")
	entry, ok := fs.hashes[key]
	if !ok {
		t.Fatal("entry not persisted")
	}
	if entry["model_id"] != "test-model" || entry["dimensions"] != "2" {
		t.Errorf("persisted fields = %v", entry)
	}
}

func TestGetOrCreate_HotHitSkipsGenerator(t *testing.T) {
	fs := newFakeStore()
	c := newTestCache(t, fs)
	ctx := context.Background()

	if _, _, err := c.GetOrCreate(ctx, "Some Query", staticGenerator([]float32{1, 2})); err != nil {
		t.Fatalf("prime: %v", err)
	}

	called := false
	res, hit, err := c.GetOrCreate(ctx, "  some query ", func(context.Context, string) (domain.EmbeddingResult, error) {
		called = true
		return domain.EmbeddingResult{}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !hit {
		t.Error("want hit for normalized variant")
	}
	if called {
		t.Error("generator called on hit")
	}
	if res.Embedding[0] != 1 || res.Embedding[1] != 2 {
		t.Errorf("embedding = %v", res.Embedding)
	}

	key := "semdex:qcache:" + HashQuery("some query")
	if fs.hashes[key]["access_count"] != "1" {
		t.Errorf("access_count = %q, want 1", fs.hashes[key]["access_count"])
	}
}

func TestGetOrCreate_PersistedHitWarmsHotLayer(t *testing.T) {
	fs := newFakeStore()
	warm := newTestCache(t, fs)
	ctx := context.Background()

	if _, _, err := warm.GetOrCreate(ctx, "shared query", staticGenerator([]float32{0.5, 0.6, 0.7})); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// Fresh cache, same store: entry only exists persisted.
	cold := newTestCache(t, fs)
	res, hit, err := cold.GetOrCreate(ctx, "shared query", func(context.Context, string) (domain.EmbeddingResult, error) {
		t.Fatal("generator called despite persisted entry")
		return domain.EmbeddingResult{}, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !hit {
		t.Error("want persisted hit")
	}
	if len(res.Embedding) != 3 || res.Embedding[0] != 0.5 {
		t.Errorf("embedding = %v", res.Embedding)
	}
	if res.ModelID != "test-model" {
		t.Errorf("model = %q", res.ModelID)
	}
}

func TestGetOrCreate_StoreFaultDegradesToGenerator(t *testing.T) {
	fs := newFakeStore()
	fs.hgetAllErr = errors.New("connection refused")
	fs.hsetErr = errors.New("connection refused")
	c := newTestCache(t, fs)

	res, hit, err := c.GetOrCreate(context.Background(), "query", staticGenerator([]float32{9}))
	if err != nil {
		t.Fatalf("GetOrCreate with broken store: %v", err)
	}
	if hit {
		t.Error("broken store reported a hit")
	}
	if res.Embedding[0] != 9 {
		t.Errorf("embedding = %v", res.Embedding)
	}
}

func TestGetOrCreate_GeneratorError(t *testing.T) {
	c := newTestCache(t, newFakeStore())
	wantErr := errors.New("provider down")

	_, _, err := c.GetOrCreate(context.Background(), "query", func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped generator error", err)
	}
}

func TestGetOrCreate_CorruptPersistedEntryRegenerates(t *testing.T) {
	fs := newFakeStore()
	key := "semdex:qcache:" + HashQuery("query")
	fs.hashes[key] = map[string]string{
		"vector":     "bad",
		"dimensions": "3",
		"model_id":   "test-model",
	}
	c := newTestCache(t, fs)

	res, hit, err := c.GetOrCreate(context.Background(), "query", staticGenerator([]float32{1, 2, 3}))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if hit {
		t.Error("corrupt entry reported as hit")
	}
	if len(res.Embedding) != 3 {
		t.Errorf("embedding = %v", res.Embedding)
	}
}
