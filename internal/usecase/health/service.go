// Package health aggregates readiness checks for the store and the embedding
// provider.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks embedding provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	provider ProviderChecker
}

// New creates a Service. provider can be nil.
func New(db DBPinger, provider ProviderChecker) *Service {
	return &Service{db: db, provider: provider}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.provider != nil {
		if err := s.provider.HealthCheck(ctx); err != nil {
			checks["embedding_provider"] = CheckError
		} else {
			checks["embedding_provider"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
