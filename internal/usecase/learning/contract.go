package learning

import (
	"context"

	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// Ledger reads the append-only feedback ledger in cursor order.
type Ledger interface {
	Since(ctx context.Context, cursor string, limit int) ([]domfb.Entry, error)
}

// SnapshotStore persists published snapshots.
type SnapshotStore interface {
	NextVersion(ctx context.Context) (int64, error)
	Save(ctx context.Context, s *insight.Snapshot) error
	Get(ctx context.Context, version int64) (*insight.Snapshot, error)
	Latest(ctx context.Context) (*insight.Snapshot, error)
}

// TraceReader loads the delivery trace of a query.
type TraceReader interface {
	Get(ctx context.Context, queryID string) (query.Trace, error)
}

// ResourceIndex is the slice of the resource index learning touches.
type ResourceIndex interface {
	Lookup(id string) (*domres.Resource, bool)
	SwapEmbedding(ctx context.Context, id string, vec []float32) error
}
