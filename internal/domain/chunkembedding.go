package domain

// ChunkEmbedding is one embedded slice of a document. Created once during
// ingestion, immutable thereafter; removed only when the owning document is
// deleted.
type ChunkEmbedding struct {
	DocumentID string
	ChunkIndex int
	ChunkText  string
	Vector     []float32
	ModelID    string
	Dimensions int
}

// DocumentMeta is the subset of document metadata this subsystem reads.
// Extra carries unrecognized collaborator fields as opaque pass-through.
type DocumentMeta struct {
	Title          string
	Classification string
	Extra          map[string]string
}
