// Package chi exposes the ingestion and search pipeline over a thin HTTP API.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/logger"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/semdex/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/semdex/internal/usecase/search"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server routes HTTP requests to the use case services. Logging is
// request-scoped: handlers pull the logger the middleware stored in the
// request context.
type Server struct {
	ingest        *ingestuc.Service
	search        *searchuc.Service
	health        *healthuc.Service
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ingest *ingestuc.Service, search *searchuc.Service, health *healthuc.Service) *Server {
	s := &Server{
		ingest: ingest,
		search: search,
		health: health,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDuplicateJob, http.StatusConflict, "duplicate_job"),
		sentinelHandler(domain.ErrJobNotFound, http.StatusNotFound, "job_not_found"),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"),
		sentinelHandler(domain.ErrInvalidChunkParams, http.StatusBadRequest, "invalid_chunk_parameters"),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrCodec, http.StatusInternalServerError, "codec_error"),
		sentinelHandler(domain.ErrStorage, http.StatusInternalServerError, "storage_error"),
	}
	return s
}

// Routes mounts all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/documents/{documentID}/ingest", s.handleIngest)
	r.Delete("/documents/{documentID}", s.handleDeleteDocument)
	r.Get("/jobs/{documentID}", s.handleJobStatus)
	r.Post("/jobs/sweep", s.handleSweepJobs)
	r.Post("/search", s.handleSearch)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

type ingestRequest struct {
	Content        string            `json:"content"`
	Title          string            `json:"title"`
	Classification string            `json:"classification"`
	Metadata       map[string]string `json:"metadata"`
}

type jobResponse struct {
	DocumentID      string `json:"document_id"`
	Status          string `json:"status"`
	TotalChunks     int    `json:"total_chunks"`
	ProcessedChunks int    `json:"processed_chunks"`
	ErrorMessage    string `json:"error_message,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

type ingestResponse struct {
	Skipped bool         `json:"skipped"`
	Job     *jobResponse `json:"job,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	result, err := s.ingest.Ingest(r.Context(), ingestuc.Document{
		ID:             documentID,
		Content:        req.Content,
		Title:          req.Title,
		Classification: req.Classification,
		Metadata:       req.Metadata,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := ingestResponse{Skipped: result.Skipped}
	if result.Job.DocumentID != "" {
		jr := jobToResponse(result.Job)
		resp.Job = &jr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	if err := s.ingest.Delete(r.Context(), documentID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	job, err := s.ingest.JobStatus(r.Context(), documentID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobToResponse(job))
}

type sweepRequest struct {
	OlderThanSec int `json:"older_than_sec"`
}

func (s *Server) handleSweepJobs(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.OlderThanSec <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "older_than_sec must be positive")
		return
	}

	failed, err := s.ingest.FailStale(r.Context(), time.Duration(req.OlderThanSec)*time.Second)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"failed_jobs": failed})
}

type searchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
}

type searchResultResponse struct {
	DocumentID     string            `json:"document_id"`
	ChunkIndex     int               `json:"chunk_index"`
	ChunkText      string            `json:"chunk_text"`
	Score          float64           `json:"similarity_score"`
	Title          string            `json:"document_title,omitempty"`
	Classification string            `json:"classification,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	threshold := s.search.DefaultThreshold()
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	results, err := s.search.Search(r.Context(), req.Query, req.Limit, threshold)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchResultResponse, len(results))
	for i, res := range results {
		items[i] = searchResultResponse{
			DocumentID:     res.DocumentID,
			ChunkIndex:     res.ChunkIndex,
			ChunkText:      res.ChunkText,
			Score:          res.Score,
			Title:          res.Title,
			Classification: res.Classification,
			Metadata:       res.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// handleDomainError walks the handler chain; unmatched errors become 500 and
// are logged with the request-scoped logger.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	logger.FromContext(r.Context()).Error("Unhandled domain error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// sentinelHandler maps a sentinel error to an HTTP status and code.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jobToResponse(j domain.Job) jobResponse {
	resp := jobResponse{
		DocumentID:      j.DocumentID,
		Status:          string(j.Status),
		TotalChunks:     j.TotalChunks,
		ProcessedChunks: j.ProcessedChunks,
		ErrorMessage:    j.ErrorMessage,
	}
	if !j.StartedAt.IsZero() {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339Nano)
	}
	if !j.CompletedAt.IsZero() {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339Nano)
	}
	return resp
}
