package trace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/kailas-cloud/resmatch/internal/db"
	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
)

// store is the consumer interface for query traces (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repo keeps short-lived anonymous query traces keyed by query id.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a trace repository.
func New(s store, prefix string, ttl time.Duration) *Repo {
	return &Repo{store: s, prefix: prefix, ttl: ttl}
}

func (r *Repo) key(queryID string) string { return r.prefix + "trace:" + queryID }

// Save stores a trace with the configured TTL.
func (r *Repo) Save(ctx context.Context, t *query.Trace) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trace %s: %w", t.QueryID, err)
	}
	if err := r.store.SetWithTTL(ctx, r.key(t.QueryID), data, r.ttl); err != nil {
		return fmt.Errorf("save trace %s: %w", t.QueryID, err)
	}
	return nil
}

// Get loads a trace. Expired or unknown ids return domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, queryID string) (query.Trace, error) {
	data, err := r.store.Get(ctx, r.key(queryID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return query.Trace{}, domain.ErrNotFound
		}
		return query.Trace{}, fmt.Errorf("get trace %s: %w", queryID, err)
	}
	var t query.Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return query.Trace{}, fmt.Errorf("unmarshal trace %s: %w", queryID, err)
	}
	return t, nil
}
