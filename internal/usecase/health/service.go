package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the service cannot answer queries.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckDegraded indicates a component running on a fallback.
	CheckDegraded CheckResult = "degraded"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Checks  map[string]CheckResult
	Details map[string]string
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	index     IndexProbe
	learning  LearningProbe
}

// New creates a Service. Every probe except db can be nil.
func New(db DBPinger, embedding EmbeddingChecker, index IndexProbe, learning LearningProbe) *Service {
	return &Service{db: db, embedding: embedding, index: index, learning: learning}
}

// Check runs health checks against all components. Only a database outage
// makes the service unhealthy; the rest have fallbacks.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Checks: make(map[string]CheckResult), Details: make(map[string]string)}

	if err := s.db.Ping(ctx); err != nil {
		r.Checks["database"] = CheckError
		r.Details["database"] = err.Error()
	} else {
		r.Checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			r.Checks["embedding"] = CheckError
			r.Details["embedding"] = err.Error()
		} else {
			r.Checks["embedding"] = CheckOK
		}
	}

	probe := func(name string, ok bool, detail string) {
		r.Checks[name] = CheckOK
		if !ok {
			r.Checks[name] = CheckDegraded
		}
		if detail != "" {
			r.Details[name] = detail
		}
	}
	if s.index != nil {
		ok, detail := s.index.Healthy()
		probe("index", ok, detail)
	}
	if s.learning != nil {
		ok, detail := s.learning.Healthy()
		probe("learning", ok, detail)
	}

	r.Status = Healthy
	for _, v := range r.Checks {
		if v != CheckOK {
			r.Status = Degraded
		}
	}
	if r.Checks["database"] == CheckError {
		r.Status = Unhealthy
	}
	return r
}
