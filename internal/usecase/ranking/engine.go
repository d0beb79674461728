// Package ranking scores retrieved candidates under the fixed weighted model
// and orders them deterministically.
package ranking

import (
	"math"
	"sort"

	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/geo"
	"github.com/kailas-cloud/resmatch/internal/domain/insight"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
)

// Config tunes the proximity decay.
type Config struct {
	// GeoHalfLifeMiles is the distance at which proximity halves.
	GeoHalfLifeMiles float64
}

// Candidate is a filtered candidate with its eligibility verdict.
type Candidate struct {
	Resource    *domres.Resource
	Similarity  float64
	Eligibility eligibility.Result
}

// Request is one ranking call. Snapshot is captured once per query by the
// caller; a nil snapshot scores every cluster at the default.
type Request struct {
	Candidates []Candidate
	Intent     query.Intent
	Context    query.UserContext
	Snapshot   *insight.Snapshot
	Limit      int
}

// Ranking is the ordered result. Excluded holds resources that were scored
// but cannot be returned because they are full.
type Ranking struct {
	Ranked          []score.Scored
	Excluded        []score.Scored
	SnapshotVersion int64
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates a ranking engine.
func New(cfg Config) *Engine {
	if cfg.GeoHalfLifeMiles <= 0 {
		cfg.GeoHalfLifeMiles = 10
	}
	return &Engine{cfg: cfg}
}

// Rank scores, filters and orders candidates, then renormalizes the
// returned list so its top item scores 1.0.
func (e *Engine) Rank(req Request) Ranking {
	out := Ranking{}
	if req.Snapshot != nil {
		out.SnapshotVersion = req.Snapshot.Version()
	}

	scored := make([]score.Scored, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		s := e.score(c, req)
		if c.Resource.Capacity() == domres.CapacityFull {
			out.Excluded = append(out.Excluded, s)
			continue
		}
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool { return score.Less(&scored[i], &scored[j]) })
	sort.SliceStable(out.Excluded, func(i, j int) bool { return score.Less(&out.Excluded[i], &out.Excluded[j]) })

	if req.Limit > 0 && len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	out.Ranked = renormalize(scored)
	return out
}

func (e *Engine) score(c Candidate, req Request) score.Scored {
	r := c.Resource
	proximity, dist := e.Proximity(req.Context.Location, r)
	sig := insight.Signature(req.Intent.PrimaryNeed, req.Intent.Urgency, r.Category())
	historical := req.Snapshot.Historical(r.ID(), sig)

	return score.Scored{
		Resource:      *r,
		Scores:        score.Compute(c.Similarity, c.Eligibility.Match, proximity, r.Capacity().Availability(), historical),
		Eligibility:   c.Eligibility,
		DistanceMiles: dist,
	}
}

// Proximity scores how close a resource is to the user. Absent user
// location, resources without a physical location and users inside the
// service area all score 1.0; otherwise the score halves every half-life.
func (e *Engine) Proximity(user *geo.Point, r *domres.Resource) (float64, *float64) {
	if user == nil {
		return 1, nil
	}
	var dist *float64
	if loc := r.Location(); loc != nil {
		d := geo.DistanceMiles(*user, *loc)
		dist = &d
	}
	if area := r.ServiceArea(); !area.IsZero() && area.Contains(*user) {
		return 1, dist
	}
	if dist == nil {
		return 1, nil
	}
	p := math.Pow(0.5, *dist/e.cfg.GeoHalfLifeMiles)
	return math.Max(0, math.Min(1, p)), dist
}

func renormalize(list []score.Scored) []score.Scored {
	if len(list) == 0 {
		return list
	}
	top := list[0].Scores.Raw()
	for i := range list {
		if top <= 0 {
			list[i].Scores = list[i].Scores.WithFinal(1)
			continue
		}
		list[i].Scores = list[i].Scores.WithFinal(list[i].Scores.Raw() / top)
	}
	return list
}
