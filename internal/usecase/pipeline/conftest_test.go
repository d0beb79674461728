package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
	"github.com/kailas-cloud/resmatch/internal/usecase/explain"
	"github.com/kailas-cloud/resmatch/internal/usecase/ranking"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeRetriever does exact cosine search over a fixed set.
type fakeRetriever struct {
	items     map[string]*domres.Resource
	err       error
	block     bool
	fallback  []domres.Candidate
	stale     map[string]bool
	hints     []string
	gotVector []float32
	mu        sync.Mutex
}

func newFakeRetriever(rs ...domres.Resource) *fakeRetriever {
	f := &fakeRetriever{items: map[string]*domres.Resource{}, stale: map[string]bool{}}
	for i := range rs {
		f.items[rs[i].ID()] = &rs[i]
	}
	return f
}

func (f *fakeRetriever) Retrieve(ctx context.Context, emb []float32, hint string, topK int) ([]domres.Candidate, error) {
	f.mu.Lock()
	f.hints = append(f.hints, hint)
	f.gotVector = emb
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []domres.Candidate
	for _, r := range f.items {
		if hint != "" && r.Category() != hint {
			continue
		}
		if len(emb) != len(r.Embedding()) {
			return nil, domain.ErrVectorDimMismatch
		}
		out = append(out, domres.Candidate{Resource: r, Similarity: domain.Cosine(emb, r.Embedding())})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Resource.ID() < out[j].Resource.ID()
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeRetriever) Fallback(string, []string, int) []domres.Candidate {
	return f.fallback
}

func (f *fakeRetriever) Lookup(id string) (*domres.Resource, bool) {
	if f.stale[id] {
		return nil, false
	}
	r, ok := f.items[id]
	return r, ok
}

type fakeInsights struct{ snap *insight.Snapshot }

func (f fakeInsights) Current() *insight.Snapshot { return f.snap }

type memTraces struct {
	mu    sync.Mutex
	saved []query.Trace
	err   error
}

func (m *memTraces) Save(_ context.Context, t *query.Trace) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *t)
	return nil
}

type mockEmbedder struct {
	vec   []float32
	err   error
	texts []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

type failingExplainer struct{ err error }

func (f failingExplainer) ExplainAll([]score.Scored, query.Intent) error { return f.err }

func res(t *testing.T, id, category string, capacity domres.Capacity, crit eligibility.Criteria, emb ...float32) domres.Resource {
	t.Helper()
	r, err := domres.New(id, domres.Attributes{
		Name:         "Resource " + id,
		Category:     category,
		Capacity:     capacity,
		Eligibility:  crit,
		LastVerified: fixedNow.AddDate(0, -1, 0),
	}, emb, len(emb))
	if err != nil {
		t.Fatalf("resource %s: %v", id, err)
	}
	return r
}

type fixture struct {
	retriever *fakeRetriever
	traces    *memTraces
	embedder  *mockEmbedder
	svc       *Service
}

func newFixture(t *testing.T, retriever *fakeRetriever, cfg Config, embedder *mockEmbedder) *fixture {
	t.Helper()
	f := &fixture{retriever: retriever, traces: &memTraces{}, embedder: embedder}
	if len(cfg.SupportedLanguages) == 0 {
		cfg.SupportedLanguages = []string{"en", "es"}
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = 0.05
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.3
	}
	var emb domain.Embedder
	if embedder != nil {
		emb = embedder
	}
	f.svc = New(
		retriever,
		ranking.New(ranking.Config{}),
		explain.New(explain.Config{}),
		fakeInsights{snap: insight.Empty()},
		f.traces,
		emb,
		cfg,
		zap.NewNop(),
	)
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.newID = func() string { return "q-generated" }
	return f
}

func foodIntent() query.Intent {
	return query.Intent{PrimaryNeed: "food", Urgency: query.UrgencyImmediate, Confidence: 0.9, Language: "en"}
}

var errBoom = errors.New("boom")
