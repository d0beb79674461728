// Package chi is the HTTP transport: hand-written chi handlers over the
// matching, feedback and learning services.
package chi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/metrics"
	healthuc "github.com/kailas-cloud/resmatch/internal/usecase/health"
	"github.com/kailas-cloud/resmatch/internal/usecase/learning"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
)

// Error codes returned in the {code, message} body.
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodeInvalidFeedback    = "invalid_feedback"
	CodeResourceNotFound   = "resource_not_found"
	CodeNotFound           = "not_found"
	CodeVectorDimMismatch  = "vector_dim_mismatch"
	CodeMalformedVector    = "malformed_vector"
	CodeInvalidResource    = "invalid_resource"
	CodeTopKOutOfRange     = "top_k_out_of_range"
	CodeLearningInProgress = "learning_in_progress"
	CodeEmbeddingProvider  = "embedding_provider_error"
	CodeRateLimited        = "rate_limited"
	CodeInternalError      = "internal_error"
)

const defaultMaxBodyBytes = 1 << 20

// Recommender serves recommendation queries.
type Recommender interface {
	Recommend(ctx context.Context, req pipeline.Request) (pipeline.RecommendationSet, error)
}

// FeedbackService accepts outcome feedback.
type FeedbackService interface {
	Submit(ctx context.Context, f domfb.Feedback) (domfb.Acknowledgment, error)
}

// ResourceIndex is the ingestion and review surface of the resource index.
type ResourceIndex interface {
	Get(ctx context.Context, id string) (domres.Resource, error)
	Upsert(ctx context.Context, r domres.Resource) (domres.Resource, error)
	Flag(ctx context.Context, id, reason string) error
}

// Learner runs and reports learning cycles.
type Learner interface {
	Current() *insight.Snapshot
	RunCycle(ctx context.Context) (learning.CycleResult, error)
	RunEmbeddingCycle(ctx context.Context) (learning.EmbeddingResult, error)
	Status() learning.Status
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Config holds transport settings.
type Config struct {
	Dimensions        int
	FeedbackPerMinute int
	MaxBodyBytes      int64
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers.
type Server struct {
	recommender   Recommender
	feedback      FeedbackService
	index         ResourceIndex
	learner       Learner
	health        HealthChecker
	cfg           Config
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	recommender Recommender,
	feedback FeedbackService,
	index ResourceIndex,
	learner Learner,
	health HealthChecker,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		recommender: recommender,
		feedback:    feedback,
		index:       index,
		learner:     learner,
		health:      health,
		cfg:         cfg,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		pipelineErrorHandler,
		invalidFeedbackHandler,
		sentinelHandler(domain.ErrResourceNotFound, http.StatusNotFound, CodeResourceNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrMalformedVector, http.StatusBadRequest, CodeMalformedVector),
		sentinelHandler(domain.ErrInvalidResource, http.StatusBadRequest, CodeInvalidResource),
		sentinelHandler(domain.ErrTopKOutOfRange, http.StatusBadRequest, CodeTopKOutOfRange),
		sentinelHandler(domain.ErrLearningInProgress, http.StatusConflict, CodeLearningInProgress),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
	}
	return s
}

// Routes builds the router with the standard middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/recommendations", s.Recommend)
		r.With(s.feedbackLimit()).Post("/feedback", s.SubmitFeedback)

		r.Put("/resources/{id}", s.PutResource)
		r.Get("/resources/{id}", s.GetResource)
		r.Post("/resources/{id}/flag", s.FlagResource)

		r.Get("/insights/latest", s.LatestInsights)
		r.Post("/learning/run", s.RunLearning)
		r.Post("/learning/embeddings/run", s.RunEmbeddingLearning)
		r.Get("/learning/status", s.LearningStatus)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// feedbackLimit rate limits feedback per client IP. Zero disables it.
func (s *Server) feedbackLimit() func(http.Handler) http.Handler {
	if s.cfg.FeedbackPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.cfg.FeedbackPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "too many feedback submissions")
		}),
	)
}

// HealthCheck handles GET /health. A degraded service still answers
// queries and reports 200.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:  string(report.Status),
		Checks:  report.Checks,
		Details: report.Details,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// pipelineErrorHandler passes the pipeline's caller-safe message through.
func pipelineErrorHandler(w http.ResponseWriter, err error) bool {
	var pe *pipeline.PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	status := http.StatusBadRequest
	if pe.Code == pipeline.CodeInternal || pe.Code == pipeline.CodeMalformedScore {
		status = http.StatusInternalServerError
	}
	writeError(w, status, pe.Code, pe.Message)
	return true
}

// invalidFeedbackHandler reports which field was rejected.
func invalidFeedbackHandler(w http.ResponseWriter, err error) bool {
	var fe *domain.InvalidFeedbackError
	if !errors.As(err, &fe) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    CodeInvalidFeedback,
		Message: fe.Field + ": " + fe.Reason,
		Field:   fe.Field,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.requestLogger(r).Warn("domain error", zap.Error(err))
			return
		}
	}
	s.requestLogger(r).Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
