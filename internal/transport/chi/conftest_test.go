package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	healthuc "github.com/kailas-cloud/resmatch/internal/usecase/health"
	"github.com/kailas-cloud/resmatch/internal/usecase/learning"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
)

var fixedTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRecommender struct {
	mu   sync.Mutex
	got  pipeline.Request
	set  pipeline.RecommendationSet
	err  error
	hits int
}

func (f *fakeRecommender) Recommend(_ context.Context, req pipeline.Request) (pipeline.RecommendationSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = req
	f.hits++
	if f.err != nil {
		return pipeline.RecommendationSet{}, f.err
	}
	set := f.set
	set.QueryID = req.QueryID
	return set, nil
}

type fakeFeedback struct {
	mu  sync.Mutex
	got []domfb.Feedback
	err error
}

func (f *fakeFeedback) Submit(_ context.Context, fb domfb.Feedback) (domfb.Acknowledgment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domfb.Acknowledgment{}, f.err
	}
	f.got = append(f.got, fb)
	return domfb.Acknowledgment{
		FeedbackID: "fb-1",
		ReceivedAt: fixedTime,
		Message:    "Thank you for your feedback.",
		Uses:       []string{"ranking adjustments for similar requests"},
	}, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	items   map[string]domres.Resource
	flagged map[string]string
	putErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{items: map[string]domres.Resource{}, flagged: map[string]string{}}
}

func (f *fakeIndex) Get(_ context.Context, id string) (domres.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return domres.Resource{}, domain.ErrResourceNotFound
	}
	return r, nil
}

func (f *fakeIndex) Upsert(_ context.Context, r domres.Resource) (domres.Resource, error) {
	if f.putErr != nil {
		return domres.Resource{}, f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	version := 1
	if prev, ok := f.items[r.ID()]; ok {
		version = prev.Version() + 1
	}
	next := r.WithVersion(version, fixedTime)
	f.items[r.ID()] = next
	return next, nil
}

func (f *fakeIndex) Flag(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return domain.ErrResourceNotFound
	}
	f.flagged[id] = reason
	return nil
}

type fakeLearner struct {
	snap   *insight.Snapshot
	cycle  learning.CycleResult
	emb    learning.EmbeddingResult
	err    error
	status learning.Status
}

func (f *fakeLearner) Current() *insight.Snapshot { return f.snap }

func (f *fakeLearner) RunCycle(context.Context) (learning.CycleResult, error) {
	return f.cycle, f.err
}

func (f *fakeLearner) RunEmbeddingCycle(context.Context) (learning.EmbeddingResult, error) {
	return f.emb, f.err
}

func (f *fakeLearner) Status() learning.Status { return f.status }

type fakeHealth struct{ report healthuc.Report }

func (f fakeHealth) Check(context.Context) healthuc.Report { return f.report }

type fixture struct {
	rec      *fakeRecommender
	feedback *fakeFeedback
	index    *fakeIndex
	learner  *fakeLearner
	health   *fakeHealth
	handler  http.Handler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3
	}
	f := &fixture{
		rec:      &fakeRecommender{},
		feedback: &fakeFeedback{},
		index:    newFakeIndex(),
		learner:  &fakeLearner{snap: insight.Empty()},
		health: &fakeHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}},
	}
	srv := NewServer(f.rec, f.feedback, f.index, f.learner, f.health, cfg, zap.NewNop())
	f.handler = srv.Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	e := decodeBody[errorResponse](t, rr)
	if e.Code != code {
		t.Fatalf("code = %q, want %q (message %q)", e.Code, code, e.Message)
	}
	return e
}

func storedResource(t *testing.T, id string) domres.Resource {
	t.Helper()
	r, err := domres.New(id, domres.Attributes{Name: "Pantry " + id, Category: "food"}, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("domres.New: %v", err)
	}
	return r
}

func nopLogger() *zap.Logger { return zap.NewNop() }
