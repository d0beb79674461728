package index

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu        sync.Mutex
	items     map[string]domres.Resource
	ensureErr error
	putErr    error
	updates   int
	flagged   map[string]string
}

func newMemRepo(rs ...domres.Resource) *memRepo {
	m := &memRepo{items: map[string]domres.Resource{}, flagged: map[string]string{}}
	for _, r := range rs {
		m.items[r.ID()] = r
	}
	return m
}

func (m *memRepo) EnsureIndex(context.Context) error { return m.ensureErr }

func (m *memRepo) Put(_ context.Context, r *domres.Resource) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[r.ID()] = *r
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (domres.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return domres.Resource{}, domain.ErrResourceNotFound
	}
	return r, nil
}

func (m *memRepo) LoadAll(context.Context, func(string, error)) ([]domres.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domres.Resource, 0, len(m.items))
	for _, r := range m.items {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRepo) UpdateEmbedding(_ context.Context, id string, vec []float32, version int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	r := m.items[id]
	m.items[id] = r.WithEmbedding(vec, at).WithVersion(version, at)
	return nil
}

func (m *memRepo) Flag(_ context.Context, id, reason string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged[id] = reason
	return nil
}

// mockANN returns canned neighbours.
type mockANN struct {
	mu    sync.Mutex
	hits  []domres.Neighbor
	err   error
	calls int
	lastK int
	hint  string
}

func (m *mockANN) SearchKNN(_ context.Context, _ []float32, hint string, k int) ([]domres.Neighbor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastK = k
	m.hint = hint
	return m.hits, m.err
}

func testConfig() Config {
	return Config{
		Dimensions:        3,
		Mode:              ModeExact,
		MaxTopK:           200,
		Overfetch:         2,
		ANNMinResources:   0,
		RecallSampleEvery: 1000,
		RecallThreshold:   0.5,
		RecallTarget:      0.95,
		BreakerFailures:   2,
		BreakerTimeout:    time.Minute,
	}
}

func res(t *testing.T, id, category string, vec []float32) domres.Resource {
	t.Helper()
	r, err := domres.New(id, domres.Attributes{
		Name:     "Resource " + id,
		Category: category,
		Keywords: []string{category},
	}, vec, 3)
	if err != nil {
		t.Fatalf("domres.New(%s): %v", id, err)
	}
	return r
}

func loaded(t *testing.T, cfg Config, ann ANNSearcher, rs ...domres.Resource) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo(rs...)
	svc := New(repo, ann, cfg, zap.NewNop())
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc, repo
}

func ids(cs []domres.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Resource.ID()
	}
	return out
}

var fixedTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func zapNop() *zap.Logger { return zap.NewNop() }
