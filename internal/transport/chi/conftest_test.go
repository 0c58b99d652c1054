package chi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/semdex/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/semdex/internal/usecase/search"
)

// memChunkStore backs the ingest and search services in handler tests.
type memChunkStore struct {
	mu   sync.Mutex
	rows map[string]domain.ChunkEmbedding
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{rows: make(map[string]domain.ChunkEmbedding)}
}

func (m *memChunkStore) key(doc string, idx int) string {
	return fmt.Sprintf("%s:%06d", doc, idx)
}

func (m *memChunkStore) SaveChunks(_ context.Context, embs []domain.ChunkEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, emb := range embs {
		m.rows[m.key(emb.DocumentID, emb.ChunkIndex)] = emb
	}
	return nil
}

func (m *memChunkStore) HasEmbeddings(_ context.Context, documentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memChunkStore) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.rows {
		if r.DocumentID == documentID {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *memChunkStore) IterAll(_ context.Context, fn func(domain.ChunkEmbedding) bool) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]domain.ChunkEmbedding, len(keys))
	for i, k := range keys {
		rows[i] = m.rows[k]
	}
	m.mu.Unlock()

	for _, r := range rows {
		if !fn(r) {
			return nil
		}
	}
	return nil
}

// memTracker is an in-memory job state machine.
type memTracker struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func newMemTracker() *memTracker {
	return &memTracker{jobs: make(map[string]domain.Job)}
}

func (m *memTracker) Start(_ context.Context, documentID string, totalChunks int) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[documentID]; ok && !j.Status.Terminal() {
		return domain.Job{}, fmt.Errorf("document %s: %w", documentID, domain.ErrDuplicateJob)
	}
	j := domain.Job{
		DocumentID:  documentID,
		Status:      domain.JobProcessing,
		TotalChunks: totalChunks,
		StartedAt:   time.Now().UTC(),
	}
	m.jobs[documentID] = j
	return j, nil
}

func (m *memTracker) Advance(_ context.Context, documentID string, processedChunks int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[documentID]
	j.ProcessedChunks = processedChunks
	m.jobs[documentID] = j
	return nil
}

func (m *memTracker) Complete(_ context.Context, documentID string) error {
	return m.finish(documentID, domain.JobCompleted, "")
}

func (m *memTracker) Fail(_ context.Context, documentID, errorMessage string) error {
	return m.finish(documentID, domain.JobFailed, errorMessage)
}

func (m *memTracker) finish(documentID string, status domain.JobStatus, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[documentID]
	j.Status = status
	j.ErrorMessage = domain.TruncateJobError(msg)
	j.CompletedAt = time.Now().UTC()
	m.jobs[documentID] = j
	return nil
}

func (m *memTracker) Get(_ context.Context, documentID string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[documentID]
	if !ok {
		return domain.Job{}, fmt.Errorf("document %s: %w", documentID, domain.ErrJobNotFound)
	}
	return j, nil
}

func (m *memTracker) ListProcessing(_ context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobProcessing {
			out = append(out, j)
		}
	}
	return out, nil
}

// memMetaStore is an in-memory metadata mirror.
type memMetaStore struct {
	mu    sync.Mutex
	metas map[string]domain.DocumentMeta
}

func newMemMetaStore() *memMetaStore {
	return &memMetaStore{metas: make(map[string]domain.DocumentMeta)}
}

func (m *memMetaStore) Save(_ context.Context, documentID string, meta domain.DocumentMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metas[documentID] = meta
	return nil
}

func (m *memMetaStore) Get(_ context.Context, documentID string) (domain.DocumentMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[documentID]
	if !ok {
		return domain.DocumentMeta{}, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentNotFound)
	}
	return meta, nil
}

func (m *memMetaStore) Delete(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metas, documentID)
	return nil
}

// stubEmbedder returns the same vector for every text, or a scripted error.
type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:  batch.Embeddings[0],
		ModelID:    batch.ModelID,
		Dimensions: batch.Dimensions,
	}, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if s.err != nil {
		return domain.BatchEmbeddingResult{}, s.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = s.vec
	}
	return domain.BatchEmbeddingResult{
		Embeddings: vecs,
		ModelID:    "test-model",
		Dimensions: len(s.vec),
	}, nil
}

// passthroughCache always calls the generator.
type passthroughCache struct{}

func (passthroughCache) GetOrCreate(
	ctx context.Context, queryText string,
	generate func(ctx context.Context, text string) (domain.EmbeddingResult, error),
) (domain.EmbeddingResult, bool, error) {
	res, err := generate(ctx, queryText)
	return res, false, err
}

type okPinger struct{}

func (okPinger) Ping(_ context.Context) error { return nil }

// testEnv bundles the wired server and its backing fakes.
type testEnv struct {
	server *httptest.Server
	chunks *memChunkStore
	jobs   *memTracker
	meta   *memMetaStore
	embed  *stubEmbedder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	chunks := newMemChunkStore()
	jobs := newMemTracker()
	meta := newMemMetaStore()
	embed := &stubEmbedder{vec: []float32{1, 0}}
	logger := zap.NewNop()

	ingestSvc := ingestuc.New(chunks, jobs, meta, embed, ingestuc.Config{
		ChunkSize:    10,
		ChunkOverlap: 2,
		BatchSize:    5,
	}, logger)
	searchSvc := searchuc.New(chunks, passthroughCache{}, embed, meta, nil, searchuc.Config{}, logger)
	healthSvc := healthuc.New(okPinger{}, nil)

	r := chi.NewRouter()
	NewServer(ingestSvc, searchSvc, healthSvc).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, chunks: chunks, jobs: jobs, meta: meta, embed: embed}
}
