package semdex

// IngestRequest is the payload for document ingestion.
type IngestRequest struct {
	Content        string            `json:"content"`
	Title          string            `json:"title,omitempty"`
	Classification string            `json:"classification,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Job describes the state of an ingestion job.
type Job struct {
	DocumentID      string `json:"document_id"`
	Status          string `json:"status"`
	TotalChunks     int    `json:"total_chunks"`
	ProcessedChunks int    `json:"processed_chunks"`
	ErrorMessage    string `json:"error_message,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// IngestResult is the outcome of an ingest call. Skipped is true when the
// document already had embeddings and no new job was started.
type IngestResult struct {
	Skipped bool `json:"skipped"`
	Job     *Job `json:"job,omitempty"`
}

// SearchRequest is the payload for a semantic search.
type SearchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// SearchResult is a single scored chunk hit.
type SearchResult struct {
	DocumentID     string            `json:"document_id"`
	ChunkIndex     int               `json:"chunk_index"`
	ChunkText      string            `json:"chunk_text"`
	Score          float64           `json:"similarity_score"`
	Title          string            `json:"document_title,omitempty"`
	Classification string            `json:"classification,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
