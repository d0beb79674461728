package eligibility

import (
	"slices"
	"testing"

	"github.com/kailas-cloud/resmatch/internal/domain/query"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func TestEvaluate_NoCriteriaIsNeutralUnknown(t *testing.T) {
	got := Evaluate(Criteria{}, query.Demographics{Income: ptrF(1000)})
	if got.Match != Neutral || got.Status != StatusUnknown {
		t.Fatalf("got %v/%s, want 0.5/unknown", got.Match, got.Status)
	}
}

func TestEvaluate_MissingIncomeIsNotPenalized(t *testing.T) {
	got := Evaluate(Criteria{Income: AtMost(2000)}, query.Demographics{})
	if got.Status != StatusUnknown {
		t.Errorf("status = %s, want unknown", got.Status)
	}
	if got.Match != Neutral {
		t.Errorf("match = %v, want neutral", got.Match)
	}
	if !slices.Contains(got.MissingInfo, "income") {
		t.Errorf("missing = %v, want income", got.MissingInfo)
	}
}

func TestEvaluate_Income(t *testing.T) {
	c := Criteria{Income: AtMost(2000)}
	tests := []struct {
		income float64
		want   float64
	}{
		{1500, Pass},
		{2000, Pass},
		{2150, Partial}, // within 10%
		{2500, Fail},
	}
	for _, tc := range tests {
		got := Evaluate(c, query.Demographics{Income: ptrF(tc.income)})
		if got.Match != tc.want {
			t.Errorf("income %v: match = %v, want %v", tc.income, got.Match, tc.want)
		}
	}
}

func TestEvaluate_Age(t *testing.T) {
	c := Criteria{Age: NewRange(18, 24)}
	tests := []struct {
		age  int
		want float64
	}{
		{20, Pass},
		{25, Partial},
		{17, Partial},
		{40, Fail},
	}
	for _, tc := range tests {
		got := Evaluate(c, query.Demographics{Age: ptrI(tc.age)})
		if got.Match != tc.want {
			t.Errorf("age %d: match = %v, want %v", tc.age, got.Match, tc.want)
		}
	}
}

func TestEvaluate_ResidencyHierarchy(t *testing.T) {
	c := Criteria{Residency: []string{"US-CA-SF"}}
	tests := []struct {
		region string
		want   float64
	}{
		{"US-CA-SF", Pass},
		{"us-ca-sf-94110", Pass},
		{"US-CA", Partial},
		{"US-NY", Fail},
		{"US-CA-SFO", Fail},
	}
	for _, tc := range tests {
		got := Evaluate(c, query.Demographics{Residency: []string{tc.region}})
		if got.Match != tc.want {
			t.Errorf("region %s: match = %v, want %v", tc.region, got.Match, tc.want)
		}
	}
}

func TestEvaluate_DocumentsAlwaysListed(t *testing.T) {
	c := Criteria{Documentation: []string{"photo_id", "proof_of_address"}}

	none := Evaluate(c, query.Demographics{})
	if len(none.RequiredDocuments) != 2 {
		t.Errorf("required = %v", none.RequiredDocuments)
	}
	if !slices.Contains(none.MissingInfo, "documentation") {
		t.Errorf("missing = %v", none.MissingInfo)
	}

	some := Evaluate(c, query.Demographics{DocumentsHeld: []string{"PHOTO_ID"}})
	if some.Match != Partial {
		t.Errorf("match = %v, want partial", some.Match)
	}
	if len(some.RequiredDocuments) != 2 {
		t.Errorf("required = %v", some.RequiredDocuments)
	}
}

func TestEvaluate_InvalidCriteriaAreNoConstraint(t *testing.T) {
	c := Criteria{
		Income: NewRange(3000, 1000),
		Other: []Criterion{
			{Kind: "astrology"},
			{Kind: KindPredicate, Key: "tags", Op: OpGte, Value: "x"},
		},
	}
	got := Evaluate(c, query.Demographics{Income: ptrF(500)})
	if got.Status != StatusUnknown || got.Match != Neutral {
		t.Errorf("got %v/%s, want neutral unknown", got.Match, got.Status)
	}
	if len(got.Invalid) != 3 {
		t.Errorf("invalid = %v", got.Invalid)
	}
}

func TestEvaluate_OtherKinds(t *testing.T) {
	c := Criteria{Other: []Criterion{
		{Kind: KindTag, Tag: "veteran", Description: "Served in the armed forces"},
		{Kind: KindHouseholdSize, Range: NewRange(1, 4)},
		{Kind: KindPredicate, Key: KeyAge, Op: OpGte, Value: "62"},
	}}
	d := query.Demographics{
		Tags:          []string{"Veteran"},
		HouseholdSize: ptrI(6),
		Age:           ptrI(70),
	}
	got := Evaluate(c, d)
	want := (Pass + Fail + Pass) / 3
	if got.Match != want {
		t.Errorf("match = %v, want %v", got.Match, want)
	}
	if got.Status != StatusMayQualify {
		t.Errorf("status = %s", got.Status)
	}
}

func TestEvaluate_MeanExcludesMissing(t *testing.T) {
	c := Criteria{Income: AtMost(2000), Age: AtLeast(65)}
	got := Evaluate(c, query.Demographics{Income: ptrF(1000)})
	if got.Match != Pass || got.Status != StatusLikelyEligible {
		t.Errorf("got %v/%s", got.Match, got.Status)
	}
	if !slices.Equal(got.MissingInfo, []string{"age"}) {
		t.Errorf("missing = %v", got.MissingInfo)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		match float64
		want  Status
	}{
		{1, StatusLikelyEligible},
		{0.8, StatusLikelyEligible},
		{0.79, StatusMayQualify},
		{0.4, StatusMayQualify},
		{0.39, StatusUnlikely},
	}
	for _, tc := range tests {
		if got := StatusFor(tc.match, true); got != tc.want {
			t.Errorf("StatusFor(%v) = %s, want %s", tc.match, got, tc.want)
		}
	}
}
