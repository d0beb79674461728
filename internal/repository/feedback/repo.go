package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/db"
	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
)

// store is the consumer interface for the feedback ledger (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	XAdd(ctx context.Context, stream string, fields map[string]string) (string, error)
	XRange(ctx context.Context, stream, after string, count int64) ([]db.StreamEntry, error)
}

// Repo is the append-only feedback ledger. Records are stored once by id
// and indexed by query and by resource; the stream orders them for learning.
type Repo struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates a feedback repository. prefix is the global key prefix.
func New(s store, prefix string, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, prefix: prefix, logger: logger}
}

func (r *Repo) recordKey(id string) string     { return r.prefix + "fb:" + id }
func (r *Repo) byQueryKey(qid string) string   { return r.prefix + "fb:q:" + qid }
func (r *Repo) byResourceKey(id string) string { return r.prefix + "fb:r:" + id }
func (r *Repo) ledgerKey() string              { return r.prefix + "fb:ledger" }

// Append stores a record. It reports false without error when a record
// with the same id already exists; existing records are never rewritten.
//
// The ledger entry is the commit point. A failed ledger write removes the
// record and returns an error, so nothing reaches learning. Once the entry
// is written Append succeeds; a failed index push is logged and only hides
// the record from ByQuery or ByResource.
func (r *Repo) Append(ctx context.Context, f *domfb.Feedback) (bool, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return false, fmt.Errorf("marshal feedback %s: %w", f.ID, err)
	}

	created, err := r.store.SetNX(ctx, r.recordKey(f.ID), data, 0)
	if err != nil {
		return false, fmt.Errorf("store feedback %s: %w", f.ID, err)
	}
	if !created {
		return false, nil
	}

	if _, err := r.store.XAdd(ctx, r.ledgerKey(), map[string]string{
		"id":   f.ID,
		"data": string(data),
	}); err != nil {
		if delErr := r.store.Del(ctx, r.recordKey(f.ID)); delErr != nil {
			r.logger.Warn("Orphan feedback record left after ledger failure",
				zap.String("feedback_id", f.ID), zap.Error(delErr))
		}
		return false, fmt.Errorf("append ledger %s: %w", f.ID, err)
	}
	r.index(ctx, r.byQueryKey(f.QueryID), f.ID)
	r.index(ctx, r.byResourceKey(f.ResourceID), f.ID)
	return true, nil
}

func (r *Repo) index(ctx context.Context, key, id string) {
	if err := r.store.RPush(ctx, key, id); err != nil {
		r.logger.Warn("Feedback index push failed",
			zap.String("feedback_id", id), zap.String("index", key), zap.Error(err))
	}
}

// Get loads a record by id.
func (r *Repo) Get(ctx context.Context, id string) (domfb.Feedback, error) {
	data, err := r.store.Get(ctx, r.recordKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domfb.Feedback{}, domain.ErrNotFound
		}
		return domfb.Feedback{}, fmt.Errorf("get feedback %s: %w", id, err)
	}
	var f domfb.Feedback
	if err := json.Unmarshal(data, &f); err != nil {
		return domfb.Feedback{}, fmt.Errorf("unmarshal feedback %s: %w", id, err)
	}
	return f, nil
}

// ByQuery returns all records submitted for a query, oldest first.
func (r *Repo) ByQuery(ctx context.Context, queryID string) ([]domfb.Feedback, error) {
	return r.byIndex(ctx, r.byQueryKey(queryID))
}

// ByResource returns all records submitted for a resource, oldest first.
func (r *Repo) ByResource(ctx context.Context, resourceID string) ([]domfb.Feedback, error) {
	return r.byIndex(ctx, r.byResourceKey(resourceID))
}

func (r *Repo) byIndex(ctx context.Context, key string) ([]domfb.Feedback, error) {
	ids, err := r.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list feedback %s: %w", key, err)
	}
	out := make([]domfb.Feedback, 0, len(ids))
	for _, id := range ids {
		f, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Since returns up to limit ledger entries strictly after cursor. An empty
// cursor reads from the beginning.
func (r *Repo) Since(ctx context.Context, cursor string, limit int) ([]domfb.Entry, error) {
	raw, err := r.store.XRange(ctx, r.ledgerKey(), cursor, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	out := make([]domfb.Entry, 0, len(raw))
	for _, e := range raw {
		var f domfb.Feedback
		if err := json.Unmarshal([]byte(e.Fields["data"]), &f); err != nil {
			// A corrupt entry still advances the cursor.
			out = append(out, domfb.Entry{Cursor: e.ID})
			continue
		}
		out = append(out, domfb.Entry{Cursor: e.ID, Feedback: f})
	}
	return out, nil
}
