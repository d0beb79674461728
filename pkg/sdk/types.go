package resmatch

import (
	"time"

	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/usecase/learning"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
)

// Query types.
type (
	Request           = pipeline.Request
	Intent            = query.Intent
	UserContext       = query.UserContext
	RecommendationSet = pipeline.RecommendationSet
	Recommendation    = pipeline.Recommendation
)

// Feedback types.
type (
	Feedback       = domfb.Feedback
	Acknowledgment = domfb.Acknowledgment
)

// ResourceAttributes describes a resource as stored in the catalog.
type ResourceAttributes = domres.Attributes

// Learning results.
type (
	CycleResult          = learning.CycleResult
	EmbeddingCycleResult = learning.EmbeddingResult
)

// Resource is the stored view of a catalog entry.
type Resource struct {
	ID                  string
	Attributes          ResourceAttributes
	EmbeddingDimensions int
	Flagged             bool
	FlagReason          string
	Version             int
	UpdatedAt           time.Time
}

// Pattern is the learned success rate for one resource and query cluster.
type Pattern struct {
	ResourceID        string
	Signature         string
	HistoricalSuccess float64
	SampleSize        int
	UpdatedAt         time.Time
}

// Insights is a view of the published learning snapshot.
type Insights struct {
	Version   int64
	CreatedAt time.Time
	Patterns  []Pattern
}

func toResource(r *domres.Resource) Resource {
	return Resource{
		ID:                  r.ID(),
		Attributes:          r.Attributes(),
		EmbeddingDimensions: len(r.Embedding()),
		Flagged:             r.Flagged(),
		FlagReason:          r.FlagReason(),
		Version:             r.Version(),
		UpdatedAt:           r.UpdatedAt(),
	}
}
