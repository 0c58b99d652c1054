package semdex

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known API failure modes.
// Use errors.Is() to check.
var (
	ErrDuplicateJob     = errors.New("semdex: ingestion already in progress")
	ErrJobNotFound      = errors.New("semdex: job not found")
	ErrDocumentNotFound = errors.New("semdex: document not found")
	ErrProvider         = errors.New("semdex: embedding provider error")
)

// APIError carries the structured error body returned by the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("semdex: api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps known API error codes to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "duplicate_job":
		return ErrDuplicateJob
	case "job_not_found":
		return ErrJobNotFound
	case "document_not_found":
		return ErrDocumentNotFound
	case "embedding_provider_error":
		return ErrProvider
	default:
		return nil
	}
}
