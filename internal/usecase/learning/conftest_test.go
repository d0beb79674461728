package learning

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memLedger orders entries by "<ms>-<seq>" ids like a valkey stream.
type memLedger struct {
	mu      sync.Mutex
	entries []domfb.Entry
	seq     int
	err     error
}

func (m *memLedger) add(at time.Time, f domfb.Feedback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries = append(m.entries, domfb.Entry{
		Cursor:   fmt.Sprintf("%d-%d", at.UnixMilli(), m.seq),
		Feedback: f,
	})
}

func (m *memLedger) addCorrupt(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries = append(m.entries, domfb.Entry{Cursor: fmt.Sprintf("%d-%d", at.UnixMilli(), m.seq)})
}

func parseID(id string) (int64, int64) {
	a, b, _ := strings.Cut(id, "-")
	ms, _ := strconv.ParseInt(a, 10, 64)
	seq, _ := strconv.ParseInt(b, 10, 64)
	return ms, seq
}

func after(id, cursor string) bool {
	if cursor == "" {
		return true
	}
	am, as := parseID(id)
	bm, bs := parseID(cursor)
	return am > bm || (am == bm && as > bs)
}

func (m *memLedger) Since(_ context.Context, cursor string, limit int) ([]domfb.Entry, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domfb.Entry
	for _, e := range m.entries {
		if after(e.Cursor, cursor) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memSnapshots struct {
	mu       sync.Mutex
	seq      int64
	byVer    map[int64]*insight.Snapshot
	latest   int64
	saveErr  error
	versions []int64
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{byVer: map[int64]*insight.Snapshot{}}
}

func (m *memSnapshots) NextVersion(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *memSnapshots) Save(_ context.Context, s *insight.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byVer[s.Version()] = s
	m.latest = s.Version()
	m.versions = append(m.versions, s.Version())
	return nil
}

func (m *memSnapshots) Get(_ context.Context, v int64) (*insight.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byVer[v]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *memSnapshots) Latest(ctx context.Context) (*insight.Snapshot, error) {
	m.mu.Lock()
	v := m.latest
	m.mu.Unlock()
	if v == 0 {
		return nil, domain.ErrNotFound
	}
	return m.Get(ctx, v)
}

type memTraces map[string]query.Trace

func (m memTraces) Get(_ context.Context, qid string) (query.Trace, error) {
	t, ok := m[qid]
	if !ok {
		return query.Trace{}, domain.ErrNotFound
	}
	return t, nil
}

type memIndex struct {
	mu      sync.Mutex
	items   map[string]*domres.Resource
	swaps   int
	swapErr error
}

func newMemIndex(t *testing.T, rs ...domres.Resource) *memIndex {
	t.Helper()
	m := &memIndex{items: map[string]*domres.Resource{}}
	for i := range rs {
		m.items[rs[i].ID()] = &rs[i]
	}
	return m
}

func (m *memIndex) Lookup(id string) (*domres.Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	return r, ok
}

func (m *memIndex) SwapEmbedding(_ context.Context, id string, vec []float32) error {
	if m.swapErr != nil {
		return m.swapErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.items[id].WithEmbedding(domain.Normalize(vec), fixedNow)
	m.items[id] = &next
	m.swaps++
	return nil
}

func res(t *testing.T, id, category string, emb ...float32) domres.Resource {
	t.Helper()
	r, err := domres.New(id, domres.Attributes{Name: id, Category: category}, emb, len(emb))
	if err != nil {
		t.Fatalf("resource %s: %v", id, err)
	}
	return r
}

type fixture struct {
	ledger    *memLedger
	snapshots *memSnapshots
	traces    memTraces
	index     *memIndex
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    &memLedger{},
		snapshots: newMemSnapshots(),
		traces: memTraces{
			"q-food": {
				QueryID: "q-food", PrimaryNeed: "Food", Urgency: query.UrgencyImmediate,
				Embedding: []float32{0, 1, 0},
				Delivered: []string{"pantry-1"}, Categories: []string{"food"},
			},
		},
		index: newMemIndex(t, res(t, "pantry-1", "food", 1, 0, 0), res(t, "clinic-1", "health", 0, 0, 1)),
	}
	f.svc = New(f.ledger, f.snapshots, f.traces, f.index, Config{BatchSize: 2}, zap.NewNop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) feedback(n int, qid, rid string, helpful bool) {
	for range n {
		f.ledger.add(fixedNow.Add(-time.Hour), domfb.Feedback{
			ID: "fb", QueryID: qid, ResourceID: rid, Helpful: helpful, Timestamp: fixedNow.Add(-time.Hour),
		})
	}
}

const foodSig = "food|immediate|food"
