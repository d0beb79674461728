package pipeline

import (
	"context"
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/query"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
	"github.com/kailas-cloud/resmatch/internal/domain/score"
)

func ids(set RecommendationSet) []string {
	out := make([]string, len(set.Recommendations))
	for i, r := range set.Recommendations {
		out[i] = r.ResourceID
	}
	return out
}

func TestRecommend_SemanticMatchExplained(t *testing.T) {
	x := res(t, "pantry-x", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	other := res(t, "clinic-y", "health", domres.CapacityAccepting, eligibility.Criteria{}, 0, 0, 1)
	f := newFixture(t, newFakeRetriever(x, other), Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{
		QueryID: "q-1", Embedding: []float32{0.95, 0.1, 0}, Intent: foodIntent(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Recommendations) != 1 || set.Recommendations[0].ResourceID != "pantry-x" {
		t.Fatalf("recommendations = %v", ids(set))
	}
	rec := set.Recommendations[0]
	if rec.Scores.Final != 1 {
		t.Errorf("top final = %v, want 1", rec.Scores.Final)
	}
	if len(rec.Explanation.KeyFactors) == 0 || rec.Explanation.KeyFactors[0].Factor != score.FactorSemantic {
		t.Errorf("key factors = %+v", rec.Explanation.KeyFactors)
	}
	if set.Degraded || set.Guidance != nil {
		t.Errorf("set = %+v", set)
	}
}

func TestRecommend_MissingIncomeStillReturned(t *testing.T) {
	crit := eligibility.Criteria{Income: eligibility.AtMost(2000)}
	r := res(t, "snap-office", "food", domres.CapacityAccepting, crit, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Recommendations) != 1 {
		t.Fatalf("recommendations = %v", ids(set))
	}
	exp := set.Recommendations[0].Explanation
	if exp.EligibilityStatus != eligibility.StatusUnknown || !slices.Contains(exp.MissingInfo, "income") {
		t.Errorf("explanation = %+v", exp)
	}
	if !slices.Contains(set.SuggestionsForRefinement, missingInfoHints[eligibility.KeyIncome]) {
		t.Errorf("suggestions = %v", set.SuggestionsForRefinement)
	}
	if set.QueryID != "q-generated" {
		t.Errorf("query id = %q", set.QueryID)
	}
}

func TestRecommend_IncomeFromEntities(t *testing.T) {
	crit := eligibility.Criteria{Income: eligibility.AtMost(2000)}
	r := res(t, "snap-office", "food", domres.CapacityAccepting, crit, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)
	in := foodIntent()
	in.Entities = []query.Entity{{Type: "income", Value: "$1,500"}}

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: in})
	if err != nil {
		t.Fatal(err)
	}
	if st := set.Recommendations[0].EligibilityStatus; st != eligibility.StatusLikelyEligible {
		t.Errorf("status = %s", st)
	}
}

func TestRecommend_FullResourcesExcluded(t *testing.T) {
	open := res(t, "open", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0.1, 0)
	full := res(t, "full", "food", domres.CapacityFull, eligibility.Criteria{}, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(open, full), Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(set); !reflect.DeepEqual(got, []string{"open"}) {
		t.Errorf("recommendations = %v", got)
	}
	if set.TotalFound != 1 {
		t.Errorf("total_found = %d", set.TotalFound)
	}
}

func TestRecommend_TopKAndScores(t *testing.T) {
	var rs []domres.Resource
	for i, v := range []float32{1, 0.9, 0.8, 0.7, 0.6} {
		rs = append(rs, res(t, string(rune('a'+i)), "food", domres.CapacityAccepting, eligibility.Criteria{}, v, 1-v, 0))
	}
	f := newFixture(t, newFakeRetriever(rs...), Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent(), TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Recommendations) != 3 || set.TotalFound != 5 {
		t.Fatalf("got %d recommendations, total %d", len(set.Recommendations), set.TotalFound)
	}
	if set.Recommendations[0].Scores.Final != 1 {
		t.Errorf("top = %v", set.Recommendations[0].Scores.Final)
	}
	for i := 1; i < len(set.Recommendations); i++ {
		prev, cur := set.Recommendations[i-1].Scores.Final, set.Recommendations[i].Scores.Final
		if cur > prev || cur < 0 || cur > 1 {
			t.Errorf("scores out of order: %v then %v", prev, cur)
		}
	}
}

func TestRecommend_Deterministic(t *testing.T) {
	a := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0.2, 0)
	b := res(t, "b", "food", domres.CapacityWaitlist, eligibility.Criteria{}, 1, 0.2, 0)
	f := newFixture(t, newFakeRetriever(a, b), Config{}, nil)
	req := Request{QueryID: "q", Embedding: []float32{1, 0.1, 0}, Intent: foodIntent()}

	first, err := f.svc.Recommend(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Recommend(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical requests produced different results")
	}
	if got := ids(first); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("order = %v", got)
	}
}

func TestRecommend_Guidance(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	tests := []struct {
		name   string
		req    Request
		reason string
	}{
		{"empty", Request{}, ReasonEmptyQuery},
		{"unsupported language", Request{Text: "j'ai faim", Intent: query.Intent{PrimaryNeed: "food", Language: "fr", Confidence: 0.9}}, ReasonUnsupportedLanguage},
		{"context language", Request{Text: "hungry", Intent: query.Intent{PrimaryNeed: "food", Confidence: 0.9}, Context: query.UserContext{Language: "de"}}, ReasonUnsupportedLanguage},
		{"ambiguous", Request{Text: "help", Intent: query.Intent{Confidence: 0.1}}, ReasonAmbiguousQuery},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, newFakeRetriever(r), Config{}, nil)
			set, err := f.svc.Recommend(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("guidance must not be an error: %v", err)
			}
			if set.Guidance == nil || set.Guidance.Reason != tc.reason {
				t.Fatalf("guidance = %+v", set.Guidance)
			}
			if len(set.Guidance.ClarifyingQuestions) == 0 || len(set.Recommendations) != 0 {
				t.Errorf("set = %+v", set)
			}
			if len(f.retriever.hints) != 0 {
				t.Error("guidance should not reach retrieval")
			}
		})
	}
}

func TestRecommend_RegionalLanguageAccepted(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)
	in := foodIntent()
	in.Language = "es-MX"

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: in})
	if err != nil || set.Guidance != nil {
		t.Fatalf("set = %+v, err = %v", set, err)
	}
}

func TestRecommend_ContractViolations(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	nan := float32(math.NaN())
	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"top_k too large", Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent(), TopK: 500}, CodeInvalidRequest},
		{"negative top_k", Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent(), TopK: -1}, CodeInvalidRequest},
		{"nan embedding", Request{Embedding: []float32{nan, 0, 0}, Intent: foodIntent()}, CodeInvalidEmbedding},
		{"zero embedding", Request{Embedding: []float32{0, 0, 0}, Intent: foodIntent()}, CodeInvalidEmbedding},
		{"wrong dimension", Request{Embedding: []float32{1, 0}, Intent: foodIntent()}, CodeInvalidEmbedding},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, newFakeRetriever(r), Config{MaxTopK: 200}, nil)
			_, err := f.svc.Recommend(context.Background(), tc.req)
			var pe *PipelineError
			if !errors.As(err, &pe) || pe.Code != tc.code {
				t.Fatalf("got %v, want code %s", err, tc.code)
			}
		})
	}
}

func TestRecommend_MalformedScoreIsStructured(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)
	f.svc.explainer = failingExplainer{err: domain.NewMalformedScore("semantic", 2)}

	_, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Code != CodeMalformedScore {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, domain.ErrMalformedScore) {
		t.Error("cause should be preserved")
	}
}

func TestRecommend_RetrievalTimeoutDegrades(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	retr := newFakeRetriever(r)
	retr.block = true
	retr.fallback = []domres.Candidate{{Resource: retr.items["a"], Similarity: 1}}
	f := newFixture(t, retr, Config{Deadline: 20 * time.Millisecond}, nil)

	start := time.Now()
	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("deadline not enforced")
	}
	if !set.Degraded || !slices.Contains(set.DegradedReasons, DegradedRetrievalTimeout) {
		t.Errorf("degraded = %v %v", set.Degraded, set.DegradedReasons)
	}
	if got := ids(set); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("recommendations = %v", got)
	}
}

func TestRecommend_RetrievalErrorDegrades(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	retr := newFakeRetriever(r)
	retr.err = errBoom
	retr.fallback = []domres.Candidate{{Resource: retr.items["a"], Similarity: 0.5}}
	f := newFixture(t, retr, Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil {
		t.Fatal(err)
	}
	if !set.Degraded || set.DegradedReasons[0] != DegradedRetrievalFailed || len(set.Recommendations) != 1 {
		t.Errorf("set = %+v", set)
	}
	if !f.traces.saved[0].Degraded {
		t.Error("trace should record the degraded path")
	}
}

func TestRecommend_EmbeddingPaths(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)

	t.Run("embeds text", func(t *testing.T) {
		emb := &mockEmbedder{vec: []float32{1, 0, 0}}
		f := newFixture(t, newFakeRetriever(r), Config{}, emb)
		set, err := f.svc.Recommend(context.Background(), Request{Text: "need groceries tonight", Intent: foodIntent()})
		if err != nil {
			t.Fatal(err)
		}
		if set.Degraded || len(emb.texts) != 1 || f.retriever.gotVector == nil {
			t.Errorf("degraded=%v texts=%v", set.Degraded, emb.texts)
		}
	})
	t.Run("no embedder", func(t *testing.T) {
		retr := newFakeRetriever(r)
		retr.fallback = []domres.Candidate{{Resource: retr.items["a"], Similarity: 1}}
		f := newFixture(t, retr, Config{}, nil)
		set, err := f.svc.Recommend(context.Background(), Request{Text: "food", Intent: foodIntent()})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Contains(set.DegradedReasons, DegradedEmbedderUnavailable) || len(retr.hints) != 0 {
			t.Errorf("set = %+v", set)
		}
	})
	t.Run("embedder down", func(t *testing.T) {
		retr := newFakeRetriever(r)
		retr.fallback = []domres.Candidate{{Resource: retr.items["a"], Similarity: 1}}
		f := newFixture(t, retr, Config{}, &mockEmbedder{err: domain.ErrEmbeddingProviderError})
		set, err := f.svc.Recommend(context.Background(), Request{Text: "food", Intent: foodIntent()})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Contains(set.DegradedReasons, DegradedEmbeddingFailed) || len(set.Recommendations) != 1 {
			t.Errorf("set = %+v", set)
		}
	})
}

func TestRecommend_EmptyHintedCategoryWidens(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{
		Embedding: []float32{1, 0, 0}, Intent: foodIntent(), CategoryHint: "legal",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.retriever.hints, []string{"legal", ""}) || len(set.Recommendations) != 1 {
		t.Errorf("hints = %v, results = %v", f.retriever.hints, ids(set))
	}
}

func TestRecommend_FiltersNonMatchesAndStale(t *testing.T) {
	good := res(t, "good", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	ortho := res(t, "ortho", "food", domres.CapacityAccepting, eligibility.Criteria{}, 0, 1, 0)
	gone := res(t, "gone", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0.1, 0)
	retr := newFakeRetriever(good, ortho, gone)
	retr.stale["gone"] = true
	f := newFixture(t, retr, Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(set); !reflect.DeepEqual(got, []string{"good"}) {
		t.Errorf("recommendations = %v", got)
	}
}

func TestRecommend_NoResultsSuggestions(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 0, 1, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)

	set, err := f.svc.Recommend(context.Background(), Request{
		Embedding: []float32{1, 0, 0}, Intent: foodIntent(), CategoryHint: "food",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Recommendations) != 0 || len(set.SuggestionsForRefinement) != 2 {
		t.Errorf("set = %+v", set)
	}
	if len(f.traces.saved) != 0 {
		t.Error("empty deliveries should not store a trace")
	}
}

func TestRecommend_StoresTrace(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)

	_, err := f.svc.Recommend(context.Background(), Request{QueryID: "q-9", Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.traces.saved) != 1 {
		t.Fatalf("traces = %d", len(f.traces.saved))
	}
	tr := f.traces.saved[0]
	if tr.QueryID != "q-9" || tr.PrimaryNeed != "food" || !reflect.DeepEqual(tr.Delivered, []string{"a"}) ||
		!reflect.DeepEqual(tr.Categories, []string{"food"}) || len(tr.Embedding) != 3 {
		t.Errorf("trace = %+v", tr)
	}
}

func TestRecommend_TraceFailureIgnored(t *testing.T) {
	r := res(t, "a", "food", domres.CapacityAccepting, eligibility.Criteria{}, 1, 0, 0)
	f := newFixture(t, newFakeRetriever(r), Config{}, nil)
	f.traces.err = errBoom

	set, err := f.svc.Recommend(context.Background(), Request{Embedding: []float32{1, 0, 0}, Intent: foodIntent()})
	if err != nil || len(set.Recommendations) != 1 {
		t.Fatalf("set = %+v, err = %v", set, err)
	}
}

func TestInterpret(t *testing.T) {
	req := Request{
		Intent:       query.Intent{PrimaryNeed: "shelter", SecondaryNeeds: []string{"food"}, Urgency: query.UrgencyImmediate},
		CategoryHint: "Housing",
	}
	got := interpret(&req)
	if got.Summary != "Looking for shelter and food, needed right away (housing)." {
		t.Errorf("summary = %q", got.Summary)
	}
	if interpret(&Request{}).Urgency != query.UrgencyPlanning {
		t.Error("default urgency should be planning")
	}
}
