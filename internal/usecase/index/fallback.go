package index

import (
	"strings"
	"unicode"

	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/metrics"
)

// categoryOnlySimilarity is the similarity given to category matches when
// the degraded path has no keywords to compare.
const categoryOnlySimilarity = 0.5

// Fallback is the degraded retrieval path: a keyword and category filter
// over the cached snapshot that needs no embedding and no vector index.
// Similarity is the fraction of keywords found in the resource text.
func (s *Service) Fallback(categoryHint string, keywords []string, limit int) []domres.Candidate {
	st := s.state.Load()
	hint := normalizeHint(categoryHint)
	terms := tokenize(strings.Join(keywords, " "))
	metrics.IndexSearchTotal.WithLabelValues("keyword").Inc()

	out := make([]domres.Candidate, 0, limit)
	for _, r := range st.partition(hint) {
		var sim float64
		if len(terms) == 0 {
			if hint == "" {
				continue
			}
			sim = categoryOnlySimilarity
		} else {
			sim = overlap(terms, resourceTerms(r))
		}
		if sim <= 0 {
			continue
		}
		out = append(out, domres.Candidate{Resource: r, Similarity: sim})
	}
	sortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func resourceTerms(r *domres.Resource) map[string]struct{} {
	parts := []string{r.Name(), r.Description(), r.Category()}
	parts = append(parts, r.Subcategories()...)
	parts = append(parts, r.Keywords()...)
	set := make(map[string]struct{})
	for _, t := range tokenize(strings.Join(parts, " ")) {
		set[t] = struct{}{}
	}
	return set
}

func overlap(terms []string, set map[string]struct{}) float64 {
	hit := 0
	for _, t := range terms {
		if _, ok := set[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}

// tokenize lowercases and splits on non-alphanumerics, dropping short
// tokens and duplicates.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
