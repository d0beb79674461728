package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/resmatch/internal/db"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo runs approximate KNN over the resource index.
type Repo struct {
	store     store
	indexName string
	keyPrefix string
}

// New creates a search repository over the given FT index and key prefix.
func New(s store, indexName, keyPrefix string) *Repo {
	return &Repo{store: s, indexName: indexName, keyPrefix: keyPrefix}
}

// SearchKNN returns up to k neighbours of vec. A non-empty categoryHint
// restricts candidates to that category before the vector scan.
func (r *Repo) SearchKNN(ctx context.Context, vec []float32, categoryHint string, k int) ([]domres.Neighbor, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       vec,
		K:            k,
		ReturnFields: []string{"__vector_score"},
	}
	if categoryHint != "" {
		q.Filters = []db.TagFilter{{Field: "category", Values: []string{categoryHint}}}
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	hits := make([]domres.Neighbor, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id := strings.TrimPrefix(e.Key, r.keyPrefix)
		if id == e.Key || id == "" {
			continue // foreign key under the index prefix
		}
		hits = append(hits, domres.Neighbor{ID: id, Similarity: e.Score})
	}
	return hits, nil
}
