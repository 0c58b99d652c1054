package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunkParams signals bad chunking parameters (caller error, never retried).
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")
	// ErrProvider signals an embedding provider failure.
	ErrProvider = errors.New("embedding provider error")
	// ErrCodec signals a corrupt vector blob or a dimension mismatch.
	ErrCodec = errors.New("vector codec error")
	// ErrStorage signals a persistence failure.
	ErrStorage = errors.New("storage error")
	// ErrDuplicateJob signals a non-terminal ingestion job already exists for the document.
	ErrDuplicateJob = errors.New("ingestion job already in progress")
	// ErrJobNotFound signals a missing ingestion job.
	ErrJobNotFound = errors.New("job not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
)

// ProviderError wraps ErrProvider with the HTTP status and a retryability
// classification. Timeouts, rate limits and 5xx responses are retryable;
// malformed input and auth failures are not.
type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", ErrProvider.Error(), e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", ErrProvider.Error(), e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// NewProviderError creates a provider error.
func NewProviderError(statusCode int, message string, retryable bool) error {
	return &ProviderError{StatusCode: statusCode, Message: message, Retryable: retryable}
}

// IsRetryable reports whether err is a provider fault worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
