package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding, ingestion, and search Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "semdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "embedding_errors_total",
			Help:      "Total embedding provider errors",
		},
		[]string{"model", "error_type"},
	)

	EmbeddingTruncationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "embedding_truncations_total",
			Help:      "Inputs truncated to the provider maximum length",
		},
		[]string{"model"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "query_cache_total",
			Help:      "Query embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	IngestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "ingest_chunks_total",
			Help:      "Chunk embeddings persisted during ingestion",
		},
		[]string{"status"}, // "saved" / "failed"
	)

	IngestJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "semdex",
			Name:      "ingest_jobs_total",
			Help:      "Ingestion jobs by terminal outcome",
		},
		[]string{"outcome"}, // "completed" / "failed" / "skipped" / "duplicate"
	)

	SearchScannedVectors = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "semdex",
			Name:      "search_scanned_vectors",
			Help:      "Stored vectors scanned per similarity query",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "semdex",
			Name:      "search_duration_seconds",
			Help:      "Similarity search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

var registered bool

// Register registers the domain metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingTruncationsTotal)
	prometheus.MustRegister(QueryCacheTotal)
	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestJobsTotal)
	prometheus.MustRegister(SearchScannedVectors)
	prometheus.MustRegister(SearchDuration)
	registered = true
}
