package pipeline

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
)

// Request is one recommendation query as handed over by the gateway.
type Request struct {
	QueryID      string
	Text         string
	Embedding    []float32
	Intent       query.Intent
	Context      query.UserContext
	TopK         int
	CategoryHint string
}

// Scores is the public view of a result's sub-scores.
type Scores struct {
	Final               float64 `json:"final"`
	SemanticSimilarity  float64 `json:"semantic_similarity"`
	EligibilityMatch    float64 `json:"eligibility_match"`
	GeographicProximity float64 `json:"geographic_proximity"`
	Availability        float64 `json:"availability"`
	HistoricalSuccess   float64 `json:"historical_success"`
}

// Recommendation is one delivered resource.
type Recommendation struct {
	ResourceID        string             `json:"resource_id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Category          string             `json:"category"`
	Provider          domres.Provider    `json:"provider"`
	Capacity          domres.Capacity    `json:"capacity"`
	LastVerified      *time.Time         `json:"last_verified,omitempty"`
	DistanceMiles     *float64           `json:"distance_miles,omitempty"`
	Scores            Scores             `json:"scores"`
	EligibilityStatus eligibility.Status `json:"eligibility_status"`
	Explanation       score.Explanation  `json:"explanation"`
}

// Interpretation echoes how the query was understood.
type Interpretation struct {
	PrimaryNeed    string        `json:"primary_need"`
	SecondaryNeeds []string      `json:"secondary_needs,omitempty"`
	Urgency        query.Urgency `json:"urgency"`
	Language       string        `json:"language,omitempty"`
	CategoryHint   string        `json:"category_hint,omitempty"`
	Confidence     float64       `json:"confidence"`
	Summary        string        `json:"summary"`
}

// Guidance replaces recommendations when the query cannot be served as asked.
type Guidance struct {
	Reason              string   `json:"reason"`
	Message             string   `json:"message"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}

// RecommendationSet is the pipeline's response.
type RecommendationSet struct {
	QueryID                  string           `json:"query_id"`
	Recommendations          []Recommendation `json:"recommendations"`
	TotalFound               int              `json:"total_found"`
	QueryInterpretation      Interpretation   `json:"query_interpretation"`
	SuggestionsForRefinement []string         `json:"suggestions_for_refinement"`
	Degraded                 bool             `json:"degraded"`
	DegradedReasons          []string         `json:"degraded_reasons,omitempty"`
	SnapshotVersion          int64            `json:"snapshot_version"`
	Guidance                 *Guidance        `json:"guidance,omitempty"`
}

// Pipeline error codes.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeInvalidEmbedding = "invalid_embedding"
	CodeMalformedScore   = "malformed_score"
	CodeInternal         = "internal"
)

// PipelineError is the structured failure returned for contract violations.
// Message is safe to show to the caller; the cause is kept for logs.
type PipelineError struct {
	Code    string
	Message string
	cause   error
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

func (e *PipelineError) Unwrap() error { return e.cause }

func newPipelineError(code, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, cause: cause}
}

func toRecommendation(s *score.Scored) Recommendation {
	r := &s.Resource
	rec := Recommendation{
		ResourceID:    r.ID(),
		Name:          r.Name(),
		Description:   r.Description(),
		Category:      r.Category(),
		Provider:      r.Provider(),
		Capacity:      r.Capacity(),
		DistanceMiles: s.DistanceMiles,
		Scores: Scores{
			Final:               s.Scores.Final(),
			SemanticSimilarity:  s.Scores.Semantic(),
			EligibilityMatch:    s.Scores.Eligibility(),
			GeographicProximity: s.Scores.Geographic(),
			Availability:        s.Scores.Availability(),
			HistoricalSuccess:   s.Scores.Historical(),
		},
		EligibilityStatus: s.Eligibility.Status,
	}
	if lv := r.LastVerified(); !lv.IsZero() {
		rec.LastVerified = &lv
	}
	if s.Explanation != nil {
		rec.Explanation = *s.Explanation
	}
	return rec
}
