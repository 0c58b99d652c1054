// Package job tracks per-document ingestion state. One job per document;
// duplicate detection is atomic via SET NX on an active marker key, never a
// read-then-write race.
package job

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/semdex/internal/db"
	"github.com/kailas-cloud/semdex/internal/domain"
)

// store is the consumer interface for job state (ISP).
type store interface {
	SetNX(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Tracker implements the job state machine over a hash-based KV backend.
type Tracker struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates a job tracker.
func New(s store, keyPrefix string) *Tracker {
	return &Tracker{store: s, prefix: keyPrefix, now: time.Now}
}

// WithClock overrides the clock (tests).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Start claims the document and creates its job in processing state. A held
// claim means a non-terminal job exists: domain.ErrDuplicateJob. Terminal
// jobs do not block a new one; re-ingestion after failure starts fresh.
func (t *Tracker) Start(ctx context.Context, documentID string, totalChunks int) (domain.Job, error) {
	startedAt := t.now().UTC()

	err := t.store.SetNX(ctx, t.activeKey(documentID), []byte(startedAt.Format(time.RFC3339Nano)))
	if err != nil {
		if errors.Is(err, db.ErrKeyExists) {
			return domain.Job{}, fmt.Errorf("document %s: %w", documentID, domain.ErrDuplicateJob)
		}
		return domain.Job{}, fmt.Errorf("claim job %s: %w: %w", documentID, domain.ErrStorage, err)
	}

	// A terminal run leaves its hash behind; the new generation must not
	// inherit completed_at or error_message from it.
	if err := t.store.Del(ctx, t.jobKey(documentID)); err != nil {
		_ = t.store.Del(ctx, t.activeKey(documentID))
		return domain.Job{}, fmt.Errorf("reset job %s: %w: %w", documentID, domain.ErrStorage, err)
	}

	j := domain.Job{
		DocumentID:  documentID,
		Status:      domain.JobProcessing,
		TotalChunks: totalChunks,
		StartedAt:   startedAt,
	}

	if err := t.store.HSet(ctx, t.jobKey(documentID), buildHashFields(j)); err != nil {
		// Release the claim so the document is not wedged by a half-created job.
		_ = t.store.Del(ctx, t.activeKey(documentID))
		return domain.Job{}, fmt.Errorf("create job %s: %w: %w", documentID, domain.ErrStorage, err)
	}

	return j, nil
}

// Advance persists a new processed-chunk count. Called only after the batch
// is durably stored, so progress never overstates persisted work. The count
// must not decrease and must not exceed total_chunks.
func (t *Tracker) Advance(ctx context.Context, documentID string, processedChunks int) error {
	j, err := t.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return fmt.Errorf("job %s is %s: no transition leaves a terminal state", documentID, j.Status)
	}
	if processedChunks < j.ProcessedChunks {
		return fmt.Errorf("job %s: processed_chunks %d would decrease from %d",
			documentID, processedChunks, j.ProcessedChunks)
	}
	if processedChunks > j.TotalChunks {
		return fmt.Errorf("job %s: processed_chunks %d exceeds total %d",
			documentID, processedChunks, j.TotalChunks)
	}

	fields := map[string]string{"processed_chunks": strconv.Itoa(processedChunks)}
	if err := t.store.HSet(ctx, t.jobKey(documentID), fields); err != nil {
		return fmt.Errorf("advance job %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	return nil
}

// Complete transitions the job to completed and releases the claim.
func (t *Tracker) Complete(ctx context.Context, documentID string) error {
	return t.finish(ctx, documentID, domain.JobCompleted, "")
}

// Fail transitions the job to failed with a bounded error message and
// releases the claim.
func (t *Tracker) Fail(ctx context.Context, documentID, errorMessage string) error {
	return t.finish(ctx, documentID, domain.JobFailed, domain.TruncateJobError(errorMessage))
}

func (t *Tracker) finish(ctx context.Context, documentID string, status domain.JobStatus, errMsg string) error {
	j, err := t.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", documentID, j.Status)
	}

	fields := map[string]string{
		"status":       string(status),
		"completed_at": t.now().UTC().Format(time.RFC3339Nano),
	}
	if errMsg != "" {
		fields["error_message"] = errMsg
	}
	if err := t.store.HSet(ctx, t.jobKey(documentID), fields); err != nil {
		return fmt.Errorf("finish job %s: %w: %w", documentID, domain.ErrStorage, err)
	}

	if err := t.store.Del(ctx, t.activeKey(documentID)); err != nil {
		return fmt.Errorf("release job claim %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	return nil
}

// Get returns the most recent job for a document.
func (t *Tracker) Get(ctx context.Context, documentID string) (domain.Job, error) {
	m, err := t.store.HGetAll(ctx, t.jobKey(documentID))
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job %s: %w: %w", documentID, domain.ErrStorage, err)
	}
	if len(m) == 0 {
		return domain.Job{}, fmt.Errorf("document %s: %w", documentID, domain.ErrJobNotFound)
	}
	return parseHashFields(m)
}

// ListProcessing returns every job currently in processing state. Feeds the
// operator sweep that closes out jobs abandoned by a shutdown.
func (t *Tracker) ListProcessing(ctx context.Context) ([]domain.Job, error) {
	keys, err := t.store.Scan(ctx, t.prefix+"job:*")
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w: %w", domain.ErrStorage, err)
	}

	var jobs []domain.Job
	for _, key := range keys {
		m, err := t.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get job %s: %w: %w", key, domain.ErrStorage, err)
		}
		if len(m) == 0 {
			continue
		}
		j, err := parseHashFields(m)
		if err != nil {
			return nil, err
		}
		if j.Status == domain.JobProcessing {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (t *Tracker) jobKey(documentID string) string {
	return t.prefix + "job:" + documentID
}

func (t *Tracker) activeKey(documentID string) string {
	return t.prefix + "job_active:" + documentID
}

func buildHashFields(j domain.Job) map[string]string {
	return map[string]string{
		"document_id":      j.DocumentID,
		"status":           string(j.Status),
		"total_chunks":     strconv.Itoa(j.TotalChunks),
		"processed_chunks": strconv.Itoa(j.ProcessedChunks),
		"error_message":    j.ErrorMessage,
		"started_at":       j.StartedAt.Format(time.RFC3339Nano),
	}
}

func parseHashFields(m map[string]string) (domain.Job, error) {
	total, err := strconv.Atoi(m["total_chunks"])
	if err != nil {
		return domain.Job{}, fmt.Errorf("total_chunks %q: %w", m["total_chunks"], err)
	}
	processed, err := strconv.Atoi(m["processed_chunks"])
	if err != nil {
		return domain.Job{}, fmt.Errorf("processed_chunks %q: %w", m["processed_chunks"], err)
	}

	j := domain.Job{
		DocumentID:      m["document_id"],
		Status:          domain.JobStatus(strings.TrimSpace(m["status"])),
		TotalChunks:     total,
		ProcessedChunks: processed,
		ErrorMessage:    m["error_message"],
	}
	if v := m["started_at"]; v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.StartedAt = ts
		}
	}
	if v := m["completed_at"]; v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.CompletedAt = ts
		}
	}
	return j, nil
}
