package index

import (
	"context"
	"time"

	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// Repository persists resources and owns the vector index.
type Repository interface {
	EnsureIndex(ctx context.Context) error
	Put(ctx context.Context, r *domres.Resource) error
	Get(ctx context.Context, id string) (domres.Resource, error)
	LoadAll(ctx context.Context, skip func(id string, err error)) ([]domres.Resource, error)
	UpdateEmbedding(ctx context.Context, id string, vec []float32, version int, at time.Time) error
	Flag(ctx context.Context, id, reason string, at time.Time) error
}

// ANNSearcher runs approximate nearest-neighbour search with an optional
// category pre-filter.
type ANNSearcher interface {
	SearchKNN(ctx context.Context, vec []float32, categoryHint string, k int) ([]domres.Neighbor, error)
}
