// Package explain turns match scores into deterministic plain-language
// explanations. It reads only the scores it is given.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
)

// DefaultMinContribution is the weighted contribution a factor needs to be cited.
const DefaultMinContribution = 0.10

// Config tunes factor selection.
type Config struct {
	MinContribution float64
}

// Generator is stateless and safe for concurrent use.
type Generator struct {
	cfg Config
}

// New creates an explanation generator.
func New(cfg Config) *Generator {
	if cfg.MinContribution <= 0 {
		cfg.MinContribution = DefaultMinContribution
	}
	return &Generator{cfg: cfg}
}

// Explain builds the explanation for one scored resource. Scores that were
// never computed or fall outside [0,1] yield a *domain.MalformedScoreError.
func (g *Generator) Explain(s *score.Scored, intent query.Intent) (score.Explanation, error) {
	if field, value, ok := s.Scores.Validate(); !ok {
		return score.Explanation{}, domain.NewMalformedScore(field, value)
	}

	factors := make([]score.KeyFactor, 0, len(score.Factors))
	for _, f := range score.Factors {
		c := s.Scores.Contribution(f)
		if c < g.cfg.MinContribution {
			continue
		}
		factors = append(factors, score.KeyFactor{Factor: f, Contribution: c, Text: factorText(f, s, intent)})
	}
	// Stable sort keeps the fixed factor order for equal contributions.
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Contribution > factors[j].Contribution })

	return score.Explanation{
		Summary:           summary(s, factors),
		KeyFactors:        factors,
		EligibilityStatus: s.Eligibility.Status,
		MissingInfo:       s.Eligibility.MissingInfo,
		RequiredDocuments: s.Eligibility.RequiredDocuments,
	}, nil
}

// ExplainAll attaches an explanation to every item in place.
func (g *Generator) ExplainAll(list []score.Scored, intent query.Intent) error {
	for i := range list {
		exp, err := g.Explain(&list[i], intent)
		if err != nil {
			return fmt.Errorf("explain %s: %w", list[i].Resource.ID(), err)
		}
		list[i].Explanation = &exp
	}
	return nil
}

func factorText(f score.Factor, s *score.Scored, intent query.Intent) string {
	need := strings.TrimSpace(intent.PrimaryNeed)
	if need == "" {
		need = s.Resource.Category()
	}
	switch f {
	case score.FactorSemantic:
		if s.Scores.Semantic() >= 0.8 {
			return fmt.Sprintf("Closely matches your request for %s", need)
		}
		return fmt.Sprintf("Related to your request for %s", need)
	case score.FactorEligibility:
		return eligibilityText(s.Eligibility.Status)
	case score.FactorGeographic:
		if s.DistanceMiles != nil {
			return fmt.Sprintf("Located %.1f miles from you", *s.DistanceMiles)
		}
		return "Serves your area"
	case score.FactorAvailability:
		if s.Resource.Capacity() == domres.CapacityWaitlist {
			return "Has a waitlist for new clients"
		}
		return "Currently accepting new clients"
	default:
		if s.Scores.Historical() > 0.5 {
			return "People with similar needs found this helpful"
		}
		return "Limited feedback from similar requests so far"
	}
}

func eligibilityText(st eligibility.Status) string {
	switch st {
	case eligibility.StatusLikelyEligible:
		return "You likely meet the eligibility requirements"
	case eligibility.StatusMayQualify:
		return "You may qualify; some requirements only partly match"
	case eligibility.StatusUnlikely:
		return "Some eligibility requirements may not be met"
	default:
		return "Eligibility could not be fully checked with the information given"
	}
}

func summary(s *score.Scored, factors []score.KeyFactor) string {
	var b strings.Builder
	b.WriteString(s.Resource.Name())
	if len(factors) == 0 {
		b.WriteString(" may be relevant to your request.")
	} else {
		b.WriteString(": ")
		b.WriteString(lowerFirst(factors[0].Text))
		b.WriteString(".")
	}
	if len(s.Eligibility.MissingInfo) > 0 {
		b.WriteString(" More information needed: ")
		b.WriteString(strings.Join(s.Eligibility.MissingInfo, ", "))
		b.WriteString(".")
	}
	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
