package pipeline

import (
	"context"

	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
	"github.com/kailas-cloud/resmatch/internal/usecase/ranking"
)

// Retriever finds candidate resources.
type Retriever interface {
	Retrieve(ctx context.Context, embedding []float32, categoryHint string, topK int) ([]domres.Candidate, error)
	Fallback(categoryHint string, keywords []string, limit int) []domres.Candidate
	Lookup(id string) (*domres.Resource, bool)
}

// Ranker orders filtered candidates.
type Ranker interface {
	Rank(req ranking.Request) ranking.Ranking
}

// Explainer attaches explanations to ranked results.
type Explainer interface {
	ExplainAll(list []score.Scored, intent query.Intent) error
}

// Insights serves the live scoring snapshot.
type Insights interface {
	Current() *insight.Snapshot
}

// TraceStore keeps delivered query traces for learning.
type TraceStore interface {
	Save(ctx context.Context, t *query.Trace) error
}
