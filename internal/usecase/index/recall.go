package index

import (
	"sync"

	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

const recallSmoothing = 0.2

// recallMonitor tracks an exponentially weighted recall of approximate
// search measured against exact search on sampled queries.
type recallMonitor struct {
	mu        sync.Mutex
	threshold float64
	target    float64
	ewma      float64
	samples   int
}

func newRecallMonitor(threshold, target float64) *recallMonitor {
	return &recallMonitor{threshold: threshold, target: target, ewma: 1}
}

// observe folds one sample in. Samples where exact search returned nothing
// above the threshold carry no information and are skipped.
func (m *recallMonitor) observe(ann, exact []domres.Candidate) (float64, bool) {
	got := make(map[string]struct{}, len(ann))
	for _, c := range ann {
		got[c.Resource.ID()] = struct{}{}
	}
	relevant, hit := 0, 0
	for _, c := range exact {
		if c.Similarity < m.threshold {
			continue
		}
		relevant++
		if _, ok := got[c.Resource.ID()]; ok {
			hit++
		}
	}
	if relevant == 0 {
		return 0, false
	}
	recall := float64(hit) / float64(relevant)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ewma = (1-recallSmoothing)*m.ewma + recallSmoothing*recall
	m.samples++
	return m.ewma, true
}

func (m *recallMonitor) value() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ewma
}

// degraded reports whether approximate search is below its recall target.
func (m *recallMonitor) degraded() bool {
	return m.value() < m.target
}
