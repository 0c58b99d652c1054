package domain

import "time"

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

// Ingestion job states. Transitions move forward only:
// pending → processing → {completed, failed}.
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// MaxJobErrorLen bounds the stored error message of a failed job.
const MaxJobErrorLen = 1000

// Job tracks the ingestion of one document's chunks. At most one non-terminal
// job exists per document at a time; ProcessedChunks reflects only durably
// persisted work and never decreases.
type Job struct {
	DocumentID      string
	Status          JobStatus
	TotalChunks     int
	ProcessedChunks int
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// TruncateJobError bounds an error message to MaxJobErrorLen before storage.
func TruncateJobError(msg string) string {
	if len(msg) <= MaxJobErrorLen {
		return msg
	}
	return msg[:MaxJobErrorLen]
}
