package chi

import (
	"cmp"
	"slices"
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/geo"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	healthuc "github.com/kailas-cloud/resmatch/internal/usecase/health"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type healthResponse struct {
	Status  string                          `json:"status"`
	Checks  map[string]healthuc.CheckResult `json:"checks"`
	Details map[string]string               `json:"details,omitempty"`
}

type recommendRequest struct {
	QueryID      string            `json:"query_id" validate:"omitempty,max=128"`
	Text         string            `json:"text" validate:"max=4000"`
	Embedding    []float32         `json:"embedding"`
	Intent       query.Intent      `json:"intent"`
	Context      query.UserContext `json:"context"`
	TopK         int               `json:"top_k" validate:"gte=0"`
	CategoryHint string            `json:"category_hint" validate:"max=128"`
}

func (r *recommendRequest) toDomain() pipeline.Request {
	return pipeline.Request{
		QueryID:      r.QueryID,
		Text:         r.Text,
		Embedding:    r.Embedding,
		Intent:       r.Intent,
		Context:      r.Context,
		TopK:         r.TopK,
		CategoryHint: r.CategoryHint,
	}
}

// feedbackRequest is decoded strictly: any field outside this set, user
// identifiers included, rejects the submission.
type feedbackRequest struct {
	QueryID    string     `json:"query_id" validate:"required"`
	ResourceID string     `json:"resource_id" validate:"required"`
	Helpful    *bool      `json:"helpful" validate:"required"`
	Rating     *int       `json:"rating"`
	Comment    string     `json:"comment"`
	IssueType  string     `json:"issue_type"`
	Timestamp  *time.Time `json:"timestamp" validate:"required"`
}

func (r *feedbackRequest) toDomain() domfb.Feedback {
	return domfb.Feedback{
		QueryID:    r.QueryID,
		ResourceID: r.ResourceID,
		Helpful:    *r.Helpful,
		Rating:     r.Rating,
		Comment:    r.Comment,
		IssueType:  domfb.IssueType(r.IssueType),
		Timestamp:  *r.Timestamp,
	}
}

type resourceRequest struct {
	Name          string               `json:"name" validate:"required,max=512"`
	Description   string               `json:"description" validate:"max=10000"`
	Category      string               `json:"category" validate:"required,max=128"`
	Subcategories []string             `json:"subcategories" validate:"max=32,dive,max=128"`
	Keywords      []string             `json:"keywords" validate:"max=64,dive,max=128"`
	Provider      domres.Provider      `json:"provider"`
	Location      *geo.Point           `json:"location"`
	ServiceArea   geo.ServiceArea      `json:"service_area"`
	Languages     []string             `json:"languages" validate:"max=32,dive,max=35"`
	Accessibility []string             `json:"accessibility" validate:"max=32,dive,max=128"`
	Eligibility   eligibility.Criteria `json:"eligibility"`
	Capacity      string               `json:"capacity" validate:"omitempty,oneof=accepting waitlist full"`
	LastVerified  *time.Time           `json:"last_verified"`
	Embedding     []float32            `json:"embedding" validate:"required"`
}

func (r *resourceRequest) attributes() domres.Attributes {
	attrs := domres.Attributes{
		Name:          r.Name,
		Description:   r.Description,
		Category:      r.Category,
		Subcategories: r.Subcategories,
		Keywords:      r.Keywords,
		Provider:      r.Provider,
		Location:      r.Location,
		ServiceArea:   r.ServiceArea,
		Languages:     r.Languages,
		Accessibility: r.Accessibility,
		Eligibility:   r.Eligibility,
		Capacity:      domres.Capacity(r.Capacity),
	}
	if r.LastVerified != nil {
		attrs.LastVerified = r.LastVerified.UTC()
	}
	return attrs
}

type resourceResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Category      string               `json:"category"`
	Subcategories []string             `json:"subcategories,omitempty"`
	Keywords      []string             `json:"keywords,omitempty"`
	Provider      domres.Provider      `json:"provider"`
	Location      *geo.Point           `json:"location,omitempty"`
	ServiceArea   geo.ServiceArea      `json:"service_area"`
	Languages     []string             `json:"languages,omitempty"`
	Accessibility []string             `json:"accessibility,omitempty"`
	Eligibility   eligibility.Criteria `json:"eligibility"`
	Capacity      domres.Capacity      `json:"capacity"`
	LastVerified  *time.Time           `json:"last_verified,omitempty"`
	Dimensions    int                  `json:"embedding_dimensions"`
	Flagged       bool                 `json:"flagged"`
	FlagReason    string               `json:"flag_reason,omitempty"`
	Retired       bool                 `json:"retired"`
	Version       int                  `json:"version"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toResourceResponse(r *domres.Resource) resourceResponse {
	resp := resourceResponse{
		ID:            r.ID(),
		Name:          r.Name(),
		Description:   r.Description(),
		Category:      r.Category(),
		Subcategories: r.Subcategories(),
		Keywords:      r.Keywords(),
		Provider:      r.Provider(),
		Location:      r.Location(),
		ServiceArea:   r.ServiceArea(),
		Languages:     r.Languages(),
		Accessibility: r.Accessibility(),
		Eligibility:   r.Eligibility(),
		Capacity:      r.Capacity(),
		Dimensions:    len(r.Embedding()),
		Flagged:       r.Flagged(),
		FlagReason:    r.FlagReason(),
		Retired:       r.Retired(),
		Version:       r.Version(),
		UpdatedAt:     r.UpdatedAt(),
	}
	if lv := r.LastVerified(); !lv.IsZero() {
		resp.LastVerified = &lv
	}
	return resp
}

type flagRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type flagResponse struct {
	ResourceID string `json:"resource_id"`
	Flagged    bool   `json:"flagged"`
	Reason     string `json:"reason"`
}

type patternView struct {
	ResourceID        string    `json:"resource_id"`
	Signature         string    `json:"signature"`
	HistoricalSuccess float64   `json:"historical_success"`
	LastRate          float64   `json:"last_rate"`
	SampleSize        int       `json:"sample_size"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type insightsResponse struct {
	Version   int64         `json:"version"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
	Cursor    string        `json:"cursor,omitempty"`
	Smoothing float64       `json:"smoothing"`
	Clusters  int           `json:"clusters"`
	Pending   int           `json:"pending"`
	Patterns  []patternView `json:"patterns"`
}

// toInsightsResponse lists patterns ordered by resource then signature,
// optionally restricted to one resource.
func toInsightsResponse(s *insight.Snapshot, resourceID string) insightsResponse {
	resp := insightsResponse{
		Version:   s.Version(),
		Cursor:    s.Cursor(),
		Smoothing: s.Smoothing(),
		Clusters:  s.Len(),
		Pending:   len(s.Pending()),
		Patterns:  []patternView{},
	}
	if at := s.CreatedAt(); !at.IsZero() {
		resp.CreatedAt = &at
	}
	for k, p := range s.Patterns() {
		if resourceID != "" && k.ResourceID != resourceID {
			continue
		}
		resp.Patterns = append(resp.Patterns, patternView{
			ResourceID:        k.ResourceID,
			Signature:         k.Signature,
			HistoricalSuccess: p.HistoricalSuccess,
			LastRate:          p.LastRate,
			SampleSize:        p.SampleSize,
			UpdatedAt:         p.UpdatedAt,
		})
	}
	slices.SortFunc(resp.Patterns, func(a, b patternView) int {
		return cmp.Or(cmp.Compare(a.ResourceID, b.ResourceID), cmp.Compare(a.Signature, b.Signature))
	})
	return resp
}
