// Package ingest runs the document ingestion pipeline: chunk the text, embed
// chunk batches, persist vectors, and track job progress after every durably
// stored batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/domain/chunk"
	"github.com/kailas-cloud/semdex/internal/metrics"
)

// Document is the collaborator-supplied ingestion input.
type Document struct {
	ID             string
	Content        string
	Title          string
	Classification string
	Metadata       map[string]string
}

// Result reports the outcome of one ingestion request.
type Result struct {
	// Skipped is true when the document already had embeddings and the
	// request was an idempotent no-op.
	Skipped bool
	Job     domain.Job
}

// Config holds the chunking and batching parameters.
type Config struct {
	ChunkSize    int // words per chunk
	ChunkOverlap int // words shared between neighbors
	BatchSize    int // chunk texts per provider call
}

// Service is the ingestion pipeline.
type Service struct {
	chunks ChunkStore
	jobs   JobTracker
	meta   MetaStore
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates an ingestion service.
func New(chunks ChunkStore, jobs JobTracker, meta MetaStore, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Service{chunks: chunks, jobs: jobs, meta: meta, embed: embed, cfg: cfg, logger: logger}
}

// Ingest processes one document end to end. Re-ingestion of a document that
// already has embeddings is a no-op; a concurrent ingestion of the same
// document surfaces domain.ErrDuplicateJob. Batch n+1 never starts before
// batch n's vectors are persisted and the job has advanced.
func (s *Service) Ingest(ctx context.Context, doc Document) (Result, error) {
	if doc.ID == "" {
		return Result{}, fmt.Errorf("document ID is required")
	}

	has, err := s.chunks.HasEmbeddings(ctx, doc.ID)
	if err != nil {
		return Result{}, fmt.Errorf("check embeddings %s: %w", doc.ID, err)
	}
	if has {
		metrics.IngestJobsTotal.WithLabelValues("skipped").Inc()
		s.logger.Info("Document already embedded, skipping", zap.String("document_id", doc.ID))
		res := Result{Skipped: true}
		if j, err := s.jobs.Get(ctx, doc.ID); err == nil {
			res.Job = j
		}
		return res, nil
	}

	chunks, err := chunk.Split(doc.Content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return Result{}, fmt.Errorf("chunk document %s: %w", doc.ID, err)
	}

	job, err := s.jobs.Start(ctx, doc.ID, len(chunks))
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			metrics.IngestJobsTotal.WithLabelValues("duplicate").Inc()
		}
		return Result{}, err
	}

	if err := s.meta.Save(ctx, doc.ID, domain.DocumentMeta{
		Title:          doc.Title,
		Classification: doc.Classification,
		Extra:          doc.Metadata,
	}); err != nil {
		return Result{}, s.abort(ctx, doc.ID, err)
	}

	if len(chunks) == 0 {
		// Empty content is valid: zero chunks, job immediately completed.
		if err := s.jobs.Complete(ctx, doc.ID); err != nil {
			return Result{}, fmt.Errorf("complete empty job %s: %w", doc.ID, err)
		}
		metrics.IngestJobsTotal.WithLabelValues("completed").Inc()
		job.Status = domain.JobCompleted
		return Result{Job: job}, nil
	}

	processed := 0
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := s.processBatch(ctx, doc.ID, start, batch); err != nil {
			return Result{}, s.abort(ctx, doc.ID, err)
		}

		processed += len(batch)
		if err := s.jobs.Advance(ctx, doc.ID, processed); err != nil {
			return Result{}, s.abort(ctx, doc.ID, err)
		}

		s.logger.Debug("Batch persisted",
			zap.String("document_id", doc.ID),
			zap.Int("processed", processed),
			zap.Int("total", len(chunks)),
		)
	}

	if err := s.jobs.Complete(ctx, doc.ID); err != nil {
		return Result{}, fmt.Errorf("complete job %s: %w", doc.ID, err)
	}
	metrics.IngestJobsTotal.WithLabelValues("completed").Inc()

	job.Status = domain.JobCompleted
	job.ProcessedChunks = processed
	return Result{Job: job}, nil
}

// processBatch embeds one batch atomically and persists it in one pipelined
// write, chunk indexes in input order.
func (s *Service) processBatch(ctx context.Context, documentID string, offset int, batch []string) error {
	res, err := s.embed.EmbedBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("embed batch at chunk %d: %w", offset, err)
	}
	if len(res.Embeddings) != len(batch) {
		return fmt.Errorf("embed batch at chunk %d: got %d vectors for %d texts: %w",
			offset, len(res.Embeddings), len(batch), domain.ErrProvider)
	}

	embs := make([]domain.ChunkEmbedding, len(res.Embeddings))
	for i, vec := range res.Embeddings {
		embs[i] = domain.ChunkEmbedding{
			DocumentID: documentID,
			ChunkIndex: offset + i,
			ChunkText:  batch[i],
			Vector:     vec,
			ModelID:    res.ModelID,
			Dimensions: res.Dimensions,
		}
	}
	if err := s.chunks.SaveChunks(ctx, embs); err != nil {
		metrics.IngestChunksTotal.WithLabelValues("failed").Add(float64(len(embs)))
		return err
	}
	metrics.IngestChunksTotal.WithLabelValues("saved").Add(float64(len(embs)))
	return nil
}

// abort closes out a failed job. Cancellation is the exception: a cancelled
// ingestion leaves the job in processing with its accurate progress, to be
// resumed or swept by FailStale.
func (s *Service) abort(ctx context.Context, documentID string, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		s.logger.Warn("Ingestion cancelled, leaving job in processing",
			zap.String("document_id", documentID), zap.Error(cause))
		return fmt.Errorf("ingest %s cancelled: %w", documentID, cause)
	}

	// The job record must outlive the request that failed it.
	failCtx := context.WithoutCancel(ctx)
	if err := s.jobs.Fail(failCtx, documentID, cause.Error()); err != nil {
		s.logger.Error("Failed to mark job failed",
			zap.String("document_id", documentID), zap.Error(err))
	}
	metrics.IngestJobsTotal.WithLabelValues("failed").Inc()
	return fmt.Errorf("ingest %s: %w", documentID, cause)
}

// JobStatus returns the ingestion job for a document.
func (s *Service) JobStatus(ctx context.Context, documentID string) (domain.Job, error) {
	return s.jobs.Get(ctx, documentID)
}

// Delete removes a document's chunk embeddings and metadata mirror (cascade
// on document deletion, invoked by the document collaborator).
func (s *Service) Delete(ctx context.Context, documentID string) error {
	if err := s.chunks.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	return s.meta.Delete(ctx, documentID)
}

// FailStale closes out processing jobs older than olderThan, the operator
// action for jobs abandoned by a shutdown. Returns the number of jobs failed.
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := s.jobs.ListProcessing(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	failed := 0
	for _, j := range jobs {
		if j.StartedAt.After(cutoff) {
			continue
		}
		if err := s.jobs.Fail(ctx, j.DocumentID, "stale processing job closed by operator"); err != nil {
			return failed, fmt.Errorf("fail stale job %s: %w", j.DocumentID, err)
		}
		failed++
	}
	return failed, nil
}
