package pipeline

import (
	"slices"
	"strings"

	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
)

// Guidance reasons.
const (
	ReasonEmptyQuery          = "empty_query"
	ReasonAmbiguousQuery      = "ambiguous_query"
	ReasonUnsupportedLanguage = "unsupported_language"
)

// checkInput returns guidance when the query cannot be served as asked.
func (s *Service) checkInput(req *Request) *Guidance {
	in := req.Intent
	need := strings.TrimSpace(in.PrimaryNeed)
	text := strings.TrimSpace(req.Text)

	if need == "" && text == "" && len(req.Embedding) == 0 {
		return &Guidance{
			Reason:  ReasonEmptyQuery,
			Message: "We could not tell what kind of help you are looking for.",
			ClarifyingQuestions: []string{
				"What kind of help are you looking for, for example food, housing, health care or legal aid?",
				"How soon do you need it?",
			},
		}
	}

	if lang := requestLanguage(req); lang != "" && !s.supportsLanguage(lang) {
		return &Guidance{
			Reason:  ReasonUnsupportedLanguage,
			Message: "This service cannot answer in the language of your request yet.",
			ClarifyingQuestions: []string{
				"Could you describe your need in one of these languages: " + strings.Join(s.cfg.SupportedLanguages, ", ") + "?",
			},
		}
	}

	if need == "" && in.Confidence < s.cfg.MinConfidence {
		return &Guidance{
			Reason:  ReasonAmbiguousQuery,
			Message: "Your request could mean several things.",
			ClarifyingQuestions: []string{
				"Could you tell us a bit more about what you need help with?",
				"Is this for you, your family or someone else?",
				"How soon do you need help?",
			},
		}
	}
	return nil
}

func requestLanguage(req *Request) string {
	if req.Intent.Language != "" {
		return req.Intent.Language
	}
	return req.Context.Language
}

// supportsLanguage matches on the primary subtag, so es-MX counts as es.
func (s *Service) supportsLanguage(lang string) bool {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(lang)), "-")
	base, _, _ = strings.Cut(base, "_")
	return slices.Contains(s.cfg.SupportedLanguages, base)
}

func interpret(req *Request) Interpretation {
	in := req.Intent
	urgency := in.Urgency
	if urgency == "" {
		urgency = query.UrgencyPlanning
	}
	need := strings.TrimSpace(in.PrimaryNeed)

	var b strings.Builder
	if need != "" {
		b.WriteString("Looking for " + need)
	} else {
		b.WriteString("Looking for help")
	}
	if len(in.SecondaryNeeds) > 0 {
		b.WriteString(" and " + strings.Join(in.SecondaryNeeds, ", "))
	}
	switch urgency {
	case query.UrgencyImmediate:
		b.WriteString(", needed right away")
	case query.UrgencySoon:
		b.WriteString(", needed soon")
	}
	if req.CategoryHint != "" {
		b.WriteString(" (" + strings.ToLower(req.CategoryHint) + ")")
	}
	b.WriteString(".")

	return Interpretation{
		PrimaryNeed:    need,
		SecondaryNeeds: in.SecondaryNeeds,
		Urgency:        urgency,
		Language:       requestLanguage(req),
		CategoryHint:   req.CategoryHint,
		Confidence:     in.Confidence,
		Summary:        b.String(),
	}
}

// keywords feeds the degraded keyword filter and the embedding fallback text.
func keywords(req *Request) []string {
	out := make([]string, 0, 4+len(req.Intent.SecondaryNeeds))
	if n := strings.TrimSpace(req.Intent.PrimaryNeed); n != "" {
		out = append(out, n)
	}
	out = append(out, req.Intent.SecondaryNeeds...)
	if t := strings.TrimSpace(req.Text); t != "" {
		out = append(out, t)
	}
	return out
}

var missingInfoHints = map[string]string{
	eligibility.KeyIncome:        "Sharing your approximate monthly income would help confirm eligibility.",
	eligibility.KeyAge:           "Sharing your age would help confirm eligibility.",
	eligibility.KeyResidency:     "Sharing the city or county you live in would help confirm eligibility.",
	eligibility.KeyHouseholdSize: "Sharing how many people live in your household would help confirm eligibility.",
	"documentation":              "Letting us know which documents you have would help confirm eligibility.",
}

func suggestions(req *Request, ranked []score.Scored) []string {
	out := []string{}
	if len(ranked) == 0 {
		out = append(out, "Try describing your need in different words.")
		if req.CategoryHint != "" {
			out = append(out, "Try searching without the "+strings.ToLower(req.CategoryHint)+" category.")
		}
		return out
	}
	if req.Context.Location == nil {
		out = append(out, "Sharing your location or ZIP code would show options closer to you.")
	}
	seen := map[string]bool{}
	for i := range ranked {
		for _, m := range ranked[i].Eligibility.MissingInfo {
			hint, ok := missingInfoHints[m]
			if !ok || seen[hint] {
				continue
			}
			seen[hint] = true
			out = append(out, hint)
		}
	}
	return out
}
