package feedback

import (
	"context"

	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
)

// Repository is the append-only feedback ledger.
type Repository interface {
	Append(ctx context.Context, f *domfb.Feedback) (bool, error)
	Get(ctx context.Context, id string) (domfb.Feedback, error)
	ByQuery(ctx context.Context, queryID string) ([]domfb.Feedback, error)
	ByResource(ctx context.Context, resourceID string) ([]domfb.Feedback, error)
}

// Flagger marks resources for administrative review.
type Flagger interface {
	Flag(ctx context.Context, resourceID, reason string) error
}

// TraceReader looks up what a query delivered.
type TraceReader interface {
	Get(ctx context.Context, queryID string) (query.Trace, error)
}
