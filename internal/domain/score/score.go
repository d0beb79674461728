// Package score holds the multi-factor match scores and the scored,
// explained result types shared by ranking and explanation.
package score

import (
	"math"

	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// Factor names a ranking sub-score.
type Factor string

// Ranking factors in their fixed tie-break order.
const (
	FactorSemantic     Factor = "semantic_similarity"
	FactorEligibility  Factor = "eligibility_match"
	FactorGeographic   Factor = "geographic_proximity"
	FactorAvailability Factor = "availability"
	FactorHistorical   Factor = "historical_success"
)

// Factors lists every factor in fixed order.
var Factors = []Factor{FactorSemantic, FactorEligibility, FactorGeographic, FactorAvailability, FactorHistorical}

// Weights of the linear ranking model. They sum to 1.
var Weights = map[Factor]float64{
	FactorSemantic:     0.50,
	FactorEligibility:  0.20,
	FactorGeographic:   0.15,
	FactorAvailability: 0.10,
	FactorHistorical:   0.05,
}

// MatchScores is the immutable per-resource score breakdown. The zero value
// is invalid; build it with Compute.
type MatchScores struct {
	semantic     float64
	eligibility  float64
	geographic   float64
	availability float64
	historical   float64
	raw          float64
	final        float64
	valid        bool
}

// Compute clips each sub-score to [0,1] and combines them with Weights.
// The normalized final score starts equal to the raw one.
func Compute(semantic, eligibilityMatch, geographic, availability, historical float64) MatchScores {
	s := MatchScores{
		semantic:     clip(semantic),
		eligibility:  clip(eligibilityMatch),
		geographic:   clip(geographic),
		availability: clip(availability),
		historical:   clip(historical),
		valid:        true,
	}
	s.raw = s.semantic*Weights[FactorSemantic] +
		s.eligibility*Weights[FactorEligibility] +
		s.geographic*Weights[FactorGeographic] +
		s.availability*Weights[FactorAvailability] +
		s.historical*Weights[FactorHistorical]
	s.final = s.raw
	return s
}

// Reconstruct rebuilds scores from stored values without clipping, so
// Validate can detect corruption.
func Reconstruct(semantic, eligibilityMatch, geographic, availability, historical, raw, final float64) MatchScores {
	return MatchScores{
		semantic: semantic, eligibility: eligibilityMatch, geographic: geographic,
		availability: availability, historical: historical, raw: raw, final: final, valid: true,
	}
}

// WithFinal returns a copy with the normalized final score set.
func (s MatchScores) WithFinal(final float64) MatchScores {
	s.final = clip(final)
	return s
}

// Semantic returns the semantic similarity sub-score.
func (s MatchScores) Semantic() float64 { return s.semantic }

// Eligibility returns the eligibility sub-score.
func (s MatchScores) Eligibility() float64 { return s.eligibility }

// Geographic returns the proximity sub-score.
func (s MatchScores) Geographic() float64 { return s.geographic }

// Availability returns the availability sub-score.
func (s MatchScores) Availability() float64 { return s.availability }

// Historical returns the historical success sub-score.
func (s MatchScores) Historical() float64 { return s.historical }

// Raw returns the weighted score before renormalization.
func (s MatchScores) Raw() float64 { return s.raw }

// Final returns the externally visible renormalized score.
func (s MatchScores) Final() float64 { return s.final }

// Value returns the sub-score for f.
func (s MatchScores) Value(f Factor) float64 {
	switch f {
	case FactorSemantic:
		return s.semantic
	case FactorEligibility:
		return s.eligibility
	case FactorGeographic:
		return s.geographic
	case FactorAvailability:
		return s.availability
	default:
		return s.historical
	}
}

// Contribution returns the weighted contribution of f to the raw score.
func (s MatchScores) Contribution(f Factor) float64 {
	return s.Value(f) * Weights[f]
}

// Validate returns the first factor that is missing or outside [0,1].
// ok is false when the scores were never computed.
func (s MatchScores) Validate() (field string, value float64, ok bool) {
	if !s.valid {
		return "scores", 0, false
	}
	for _, f := range Factors {
		if v := s.Value(f); !inUnit(v) {
			return string(f), v, false
		}
	}
	if !inUnit(s.raw) {
		return "raw", s.raw, false
	}
	if !inUnit(s.final) {
		return "final", s.final, false
	}
	return "", 0, true
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// KeyFactor is one cited reason in an explanation.
type KeyFactor struct {
	Factor       Factor  `json:"factor"`
	Contribution float64 `json:"contribution"`
	Text         string  `json:"text"`
}

// Explanation is the plain-language account of one recommendation.
type Explanation struct {
	Summary           string             `json:"summary"`
	KeyFactors        []KeyFactor        `json:"key_factors"`
	EligibilityStatus eligibility.Status `json:"eligibility_status"`
	MissingInfo       []string           `json:"missing_info,omitempty"`
	RequiredDocuments []string           `json:"required_documents,omitempty"`
}

// Scored is a resource with its scores, eligibility verdict and, once the
// explanation stage ran, its explanation.
type Scored struct {
	Resource      resource.Resource
	Scores        MatchScores
	Eligibility   eligibility.Result
	DistanceMiles *float64
	Explanation   *Explanation
}

// Less orders by final desc, availability desc, last verified desc, id asc.
func Less(a, b *Scored) bool {
	if a.Scores.raw != b.Scores.raw {
		return a.Scores.raw > b.Scores.raw
	}
	if a.Scores.availability != b.Scores.availability {
		return a.Scores.availability > b.Scores.availability
	}
	ta, tb := a.Resource.LastVerified(), b.Resource.LastVerified()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.Resource.ID() < b.Resource.ID()
}
