package index

import (
	"maps"
	"slices"
	"strings"

	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// state is one published, immutable view of the active resources.
// Retired resources are never part of it.
type state struct {
	version    int64
	byID       map[string]*domres.Resource
	byCategory map[string][]*domres.Resource
	all        []*domres.Resource
}

func emptyState() *state {
	return &state{byID: map[string]*domres.Resource{}, byCategory: map[string][]*domres.Resource{}}
}

func buildState(version int64, byID map[string]*domres.Resource) *state {
	st := &state{
		version:    version,
		byID:       byID,
		byCategory: make(map[string][]*domres.Resource),
		all:        make([]*domres.Resource, 0, len(byID)),
	}
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		r := byID[id]
		st.all = append(st.all, r)
		st.byCategory[r.Category()] = append(st.byCategory[r.Category()], r)
	}
	return st
}

// with returns a copy of st with r added or replaced. Retired resources
// are removed instead.
func (st *state) with(r *domres.Resource) *state {
	next := maps.Clone(st.byID)
	if r.Retired() {
		delete(next, r.ID())
	} else {
		next[r.ID()] = r
	}
	return buildState(st.version+1, next)
}

// partition returns the candidate set for a category hint.
func (st *state) partition(hint string) []*domres.Resource {
	if hint == "" {
		return st.all
	}
	return st.byCategory[hint]
}

func (st *state) flagged() []string {
	var ids []string
	for _, r := range st.all {
		if r.Flagged() {
			ids = append(ids, r.ID())
		}
	}
	return ids
}

func normalizeHint(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
