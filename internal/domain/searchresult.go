package domain

// SearchResult is one ranked hit of a similarity search. Transient: never
// persisted as an entity, though audit logs may record its identity and score.
type SearchResult struct {
	DocumentID     string
	ChunkIndex     int
	ChunkText      string
	Score          float64
	Title          string
	Classification string
	Metadata       map[string]string
}
