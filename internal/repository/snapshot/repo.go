package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/kailas-cloud/resmatch/internal/db"
	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
)

// store is the consumer interface for snapshot persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// Repo stores immutable, versioned insight snapshots. A version is written
// once; snap:latest points at the newest published version.
type Repo struct {
	store  store
	prefix string
}

// New creates a snapshot repository. prefix is the global key prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) versionKey(v int64) string { return r.prefix + "snap:" + strconv.FormatInt(v, 10) }
func (r *Repo) latestKey() string         { return r.prefix + "snap:latest" }
func (r *Repo) seqKey() string            { return r.prefix + "snap:seq" }

// NextVersion reserves a new, strictly increasing snapshot version.
func (r *Repo) NextVersion(ctx context.Context) (int64, error) {
	v, err := r.store.Incr(ctx, r.seqKey())
	if err != nil {
		return 0, fmt.Errorf("reserve snapshot version: %w", err)
	}
	return v, nil
}

// Save writes a snapshot and moves the latest pointer to it. Writing an
// already-stored version fails with db.ErrKeyExists.
func (r *Repo) Save(ctx context.Context, s *insight.Snapshot) error {
	data, err := json.Marshal(toDTO(s))
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", s.Version(), err)
	}
	created, err := r.store.SetNX(ctx, r.versionKey(s.Version()), data, 0)
	if err != nil {
		return fmt.Errorf("save snapshot %d: %w", s.Version(), err)
	}
	if !created {
		return fmt.Errorf("save snapshot %d: %w", s.Version(), db.ErrKeyExists)
	}
	if err := r.store.Set(ctx, r.latestKey(), []byte(strconv.FormatInt(s.Version(), 10))); err != nil {
		return fmt.Errorf("publish snapshot %d: %w", s.Version(), err)
	}
	return nil
}

// Get loads one snapshot version.
func (r *Repo) Get(ctx context.Context, version int64) (*insight.Snapshot, error) {
	data, err := r.store.Get(ctx, r.versionKey(version))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot %d: %w", version, err)
	}
	var d snapshotDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %d: %w", version, err)
	}
	return fromDTO(d), nil
}

// Latest loads the newest published snapshot. It returns domain.ErrNotFound
// when nothing was published yet.
func (r *Repo) Latest(ctx context.Context) (*insight.Snapshot, error) {
	raw, err := r.store.Get(ctx, r.latestKey())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latest snapshot version %q: %w", raw, err)
	}
	return r.Get(ctx, v)
}
