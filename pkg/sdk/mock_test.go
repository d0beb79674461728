package resmatch

import (
	"context"
	"sync"

	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	healthuc "github.com/kailas-cloud/resmatch/internal/usecase/health"
	"github.com/kailas-cloud/resmatch/internal/usecase/learning"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
)

// --- recommender mock ---

type mockRecommender struct {
	fn func(ctx context.Context, req pipeline.Request) (pipeline.RecommendationSet, error)
}

func (m *mockRecommender) Recommend(ctx context.Context, req pipeline.Request) (pipeline.RecommendationSet, error) {
	return m.fn(ctx, req)
}

// --- feedbackUseCase mock ---

type mockFeedback struct {
	fn func(ctx context.Context, f domfb.Feedback) (domfb.Acknowledgment, error)
}

func (m *mockFeedback) Submit(ctx context.Context, f domfb.Feedback) (domfb.Acknowledgment, error) {
	return m.fn(ctx, f)
}

// --- resourceIndex mock ---

type mockIndex struct {
	mu      sync.Mutex
	items   map[string]domres.Resource
	flagged map[string]string
	err     error
}

func newMockIndex() *mockIndex {
	return &mockIndex{items: map[string]domres.Resource{}, flagged: map[string]string{}}
}

func (m *mockIndex) Get(_ context.Context, id string) (domres.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return domres.Resource{}, ErrResourceNotFound
	}
	return r, nil
}

func (m *mockIndex) Upsert(_ context.Context, r domres.Resource) (domres.Resource, error) {
	if m.err != nil {
		return domres.Resource{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.items[r.ID()]; ok {
		r = r.WithVersion(prev.Version()+1, r.UpdatedAt())
	}
	m.items[r.ID()] = r
	return r, nil
}

func (m *mockIndex) Flag(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrResourceNotFound
	}
	m.flagged[id] = reason
	return nil
}

// --- learner mock ---

type mockLearner struct {
	snap     *insight.Snapshot
	cycle    learning.CycleResult
	embed    learning.EmbeddingResult
	cycleErr error
}

func (m *mockLearner) Current() *insight.Snapshot {
	if m.snap == nil {
		return insight.Empty()
	}
	return m.snap
}

func (m *mockLearner) RunCycle(context.Context) (learning.CycleResult, error) {
	return m.cycle, m.cycleErr
}

func (m *mockLearner) RunEmbeddingCycle(context.Context) (learning.EmbeddingResult, error) {
	return m.embed, nil
}

// --- health mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- embedder mock ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

// --- helpers ---

func testClient(rec recommender, fb feedbackUseCase, idx resourceIndex, l learner) *Client {
	return &Client{
		dims:        3,
		recommender: rec,
		feedbackSvc: fb,
		index:       idx,
		learner:     l,
	}
}
