package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memRepo struct {
	mu        sync.Mutex
	items     []domfb.Feedback
	appendErr error
}

func (m *memRepo) Append(_ context.Context, f *domfb.Feedback) (bool, error) {
	if m.appendErr != nil {
		return false, m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *f)
	return true, nil
}

func (m *memRepo) Get(_ context.Context, id string) (domfb.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.items {
		if f.ID == id {
			return f, nil
		}
	}
	return domfb.Feedback{}, domain.ErrNotFound
}

func (m *memRepo) ByQuery(_ context.Context, qid string) ([]domfb.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domfb.Feedback
	for _, f := range m.items {
		if f.QueryID == qid {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memRepo) ByResource(_ context.Context, rid string) ([]domfb.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domfb.Feedback
	for _, f := range m.items {
		if f.ResourceID == rid {
			out = append(out, f)
		}
	}
	return out, nil
}

type mockFlagger struct {
	flagged map[string]string
	err     error
}

func (m *mockFlagger) Flag(_ context.Context, id, reason string) error {
	if m.err != nil {
		return m.err
	}
	if m.flagged == nil {
		m.flagged = map[string]string{}
	}
	m.flagged[id] = reason
	return nil
}

type mockTraces struct {
	traces map[string]query.Trace
	err    error
}

func (m *mockTraces) Get(_ context.Context, qid string) (query.Trace, error) {
	if m.err != nil {
		return query.Trace{}, m.err
	}
	t, ok := m.traces[qid]
	if !ok {
		return query.Trace{}, domain.ErrNotFound
	}
	return t, nil
}

func newTestService(repo *memRepo, fl *mockFlagger, tr TraceReader) *Service {
	s := New(repo, fl, tr, Config{MaxCommentLength: 200}, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	n := 0
	s.newID = func() string {
		n++
		return "fb-" + string(rune('0'+n))
	}
	return s
}

func validFeedback() domfb.Feedback {
	return domfb.Feedback{
		QueryID:    "q-1",
		ResourceID: "pantry-1",
		Helpful:    true,
		Timestamp:  fixedNow.Add(-time.Hour),
	}
}

var errBoom = errors.New("boom")
