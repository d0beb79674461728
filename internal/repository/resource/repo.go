package resource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kailas-cloud/resmatch/internal/db"
	"github.com/kailas-cloud/resmatch/internal/domain"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

const loadBatchSize = 200

// store is the consumer interface for resource persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	RPush(ctx context.Context, key string, values ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig holds vector index tuning.
type HNSWConfig struct {
	M              int
	EFConstruction int
}

// Repo persists resources as hashes covered by an FT vector index.
type Repo struct {
	store  store
	prefix string
	dim    int
	hnsw   HNSWConfig
}

// New creates a resource repository. prefix is the global key prefix.
func New(s store, prefix string, dim int, hnsw HNSWConfig) *Repo {
	return &Repo{store: s, prefix: prefix, dim: dim, hnsw: hnsw}
}

// KeyPrefix is the hash key prefix for resources.
func (r *Repo) KeyPrefix() string { return r.prefix + "res:" }

// IndexName is the FT index covering resource hashes.
func (r *Repo) IndexName() string { return r.prefix + "res:idx" }

func (r *Repo) key(id string) string { return r.KeyPrefix() + id }

// IDFromKey strips the resource key prefix.
func (r *Repo) IDFromKey(key string) string { return strings.TrimPrefix(key, r.KeyPrefix()) }

// EnsureIndex creates the FT index when missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.IndexName())
	if err != nil {
		return fmt.Errorf("check resource index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.IndexName()).
		Prefix(r.KeyPrefix()).
		Tag(fieldCategory, fieldCapacity).
		Vector(fieldVector, vectorAlias, db.VectorParams{
			Dim:         r.dim,
			Distance:    db.DistanceCosine,
			M:           r.hnsw.M,
			EFConstruct: r.hnsw.EFConstruction,
		}).
		Build()
	if err != nil {
		return fmt.Errorf("build resource index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create resource index: %w", err)
	}
	return nil
}

// IndexReady reports whether the FT index exists.
func (r *Repo) IndexReady(ctx context.Context) (bool, error) {
	ok, err := r.store.IndexExists(ctx, r.IndexName())
	if err != nil {
		return false, fmt.Errorf("check resource index: %w", err)
	}
	return ok, nil
}

// Put writes the full resource record in one HSET.
func (r *Repo) Put(ctx context.Context, res *domres.Resource) error {
	fields, err := toFields(res)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, r.key(res.ID()), fields); err != nil {
		return fmt.Errorf("put resource %s: %w", res.ID(), err)
	}
	return nil
}

// Get loads one resource.
func (r *Repo) Get(ctx context.Context, id string) (domres.Resource, error) {
	m, err := r.store.HGetAll(ctx, r.key(id))
	if err != nil {
		return domres.Resource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	if len(m) == 0 {
		return domres.Resource{}, domain.ErrResourceNotFound
	}
	return fromFields(id, m)
}

// LoadAll reads every stored resource. Records that fail to decode are
// reported through skip and left out.
func (r *Repo) LoadAll(ctx context.Context, skip func(id string, err error)) ([]domres.Resource, error) {
	keys, err := r.store.Scan(ctx, r.KeyPrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("scan resources: %w", err)
	}

	out := make([]domres.Resource, 0, len(keys))
	for start := 0; start < len(keys); start += loadBatchSize {
		end := min(start+loadBatchSize, len(keys))
		batch := keys[start:end]
		maps, err := r.store.HGetAllMulti(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("load resources: %w", err)
		}
		for i, m := range maps {
			if len(m) == 0 {
				continue // deleted between SCAN and HGETALL
			}
			id := r.IDFromKey(batch[i])
			res, err := fromFields(id, m)
			if err != nil {
				if skip != nil {
					skip(id, err)
				}
				continue
			}
			out = append(out, res)
		}
	}
	return out, nil
}

// UpdateEmbedding swaps the stored vector with a single HSET so readers see
// either the old or the new vector, never a mix.
func (r *Repo) UpdateEmbedding(ctx context.Context, id string, vec []float32, version int, at time.Time) error {
	err := r.store.HSet(ctx, r.key(id), map[string]string{
		fieldVector:    db.EncodeVector(vec),
		fieldVersion:   strconv.Itoa(version),
		fieldUpdatedAt: at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("update embedding %s: %w", id, err)
	}
	return nil
}

// flagEntry is the review-queue record.
type flagEntry struct {
	ResourceID string    `json:"resource_id"`
	Reason     string    `json:"reason"`
	FlaggedAt  time.Time `json:"flagged_at"`
}

// Flag marks a resource for review and appends it to the review queue.
func (r *Repo) Flag(ctx context.Context, id, reason string, at time.Time) error {
	err := r.store.HSet(ctx, r.key(id), map[string]string{
		fieldFlagged:    "1",
		fieldFlagReason: reason,
	})
	if err != nil {
		return fmt.Errorf("flag resource %s: %w", id, err)
	}
	data, err := json.Marshal(flagEntry{ResourceID: id, Reason: reason, FlaggedAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("marshal flag %s: %w", id, err)
	}
	if err := r.store.RPush(ctx, r.prefix+"flags:queue", string(data)); err != nil {
		return fmt.Errorf("enqueue flag %s: %w", id, err)
	}
	return nil
}
