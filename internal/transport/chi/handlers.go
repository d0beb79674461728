package chi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	logpkg "github.com/kailas-cloud/resmatch/internal/logger"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Recommend handles POST /v1/recommendations.
func (s *Server) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if !checkStruct(w, &req, CodeValidationFailed) {
		return
	}

	set, err := s.recommender.Recommend(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// SubmitFeedback handles POST /v1/feedback.
func (s *Server) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	if !checkStruct(w, &req, CodeInvalidFeedback) {
		return
	}

	ack, err := s.feedback.Submit(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

// PutResource handles PUT /v1/resources/{id}.
func (s *Server) PutResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req resourceRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if !checkStruct(w, &req, CodeValidationFailed) {
		return
	}

	res, err := domres.New(id, req.attributes(), req.Embedding, s.cfg.Dimensions)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	stored, err := s.index.Upsert(r.Context(), res)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(&stored))
}

// GetResource handles GET /v1/resources/{id}.
func (s *Server) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.index.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceResponse(&res))
}

// FlagResource handles POST /v1/resources/{id}/flag.
func (s *Server) FlagResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req flagRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if !checkStruct(w, &req, CodeValidationFailed) {
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if err := s.index.Flag(r.Context(), id, reason); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flagResponse{ResourceID: id, Flagged: true, Reason: reason})
}

// LatestInsights handles GET /v1/insights/latest.
func (s *Server) LatestInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toInsightsResponse(s.learner.Current(), r.URL.Query().Get("resource_id")))
}

// RunLearning handles POST /v1/learning/run.
func (s *Server) RunLearning(w http.ResponseWriter, r *http.Request) {
	res, err := s.learner.RunCycle(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunEmbeddingLearning handles POST /v1/learning/embeddings/run.
func (s *Server) RunEmbeddingLearning(w http.ResponseWriter, r *http.Request) {
	res, err := s.learner.RunEmbeddingCycle(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LearningStatus handles GET /v1/learning/status.
func (s *Server) LearningStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.learner.Status())
}

// decode reads a size-limited JSON body. strict rejects unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, strict bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, CodeBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		}
		return false
	}
	return true
}

// checkStruct runs tag validation and reports the first failing field.
func checkStruct(w http.ResponseWriter, v any, code string) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, http.StatusBadRequest, code, "invalid request")
		return false
	}
	fe := verrs[0]
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    code,
		Message: fieldMessage(fe),
		Field:   fe.Field(),
	})
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	}
	return fe.Field() + " is invalid"
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logpkg.FromContext(r.Context())
}
