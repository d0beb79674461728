package eligibility

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/resmatch/internal/domain/query"
)

// Status is the coarse eligibility verdict shown to users.
type Status string

// Eligibility statuses.
const (
	StatusLikelyEligible Status = "likely_eligible"
	StatusMayQualify     Status = "may_qualify"
	StatusUnlikely       Status = "unlikely"
	StatusUnknown        Status = "unknown"
)

// Per-criterion satisfaction levels.
const (
	Fail    = 0.0
	Partial = 0.5
	Pass    = 1.0
)

// Neutral is the match reported when nothing could be evaluated.
const Neutral = 0.5

const (
	incomeTolerance = 0.10 // partial credit within 10% of a bound
	ageTolerance    = 1.0  // partial credit within one year of a bound
)

// Result is the outcome of evaluating one resource's criteria.
type Result struct {
	Match             float64  `json:"match"`
	Status            Status   `json:"status"`
	MissingInfo       []string `json:"missing_info,omitempty"`
	RequiredDocuments []string `json:"required_documents,omitempty"`
	Invalid           []string `json:"invalid,omitempty"`
}

// StatusFor maps a match score to a status. evaluable=false yields unknown.
func StatusFor(match float64, evaluable bool) Status {
	switch {
	case !evaluable:
		return StatusUnknown
	case match >= 0.8:
		return StatusLikelyEligible
	case match >= 0.4:
		return StatusMayQualify
	default:
		return StatusUnlikely
	}
}

type outcome struct {
	score   float64
	missing bool
}

// Evaluate scores criteria against the user's demographics. Criteria that
// cannot be evaluated go to MissingInfo and are left out of the mean;
// malformed criteria are ignored and listed in Invalid.
func Evaluate(c Criteria, d query.Demographics) Result {
	res := Result{RequiredDocuments: append([]string(nil), c.Documentation...)}
	var sum float64
	var n int

	record := func(label string, o outcome) {
		if o.missing {
			res.MissingInfo = appendUnique(res.MissingInfo, label)
			return
		}
		sum += o.score
		n++
	}

	if c.Income != nil {
		if err := c.Income.validate(); err != nil {
			res.Invalid = append(res.Invalid, KeyIncome)
		} else {
			record(KeyIncome, evalIncome(c.Income, d.Income))
		}
	}
	if c.Age != nil {
		if err := c.Age.validate(); err != nil {
			res.Invalid = append(res.Invalid, KeyAge)
		} else {
			record(KeyAge, evalAge(c.Age, d.Age))
		}
	}
	if len(c.Residency) > 0 {
		record(KeyResidency, evalResidency(c.Residency, d.Residency))
	}
	if len(c.Documentation) > 0 {
		record("documentation", evalDocuments(c.Documentation, d.DocumentsHeld))
	}
	for _, oc := range c.Other {
		if err := oc.validate(); err != nil {
			res.Invalid = append(res.Invalid, oc.label())
			continue
		}
		record(oc.label(), evalOther(oc, d))
	}

	if n == 0 {
		res.Match = Neutral
		res.Status = StatusUnknown
		return res
	}
	res.Match = sum / float64(n)
	res.Status = StatusFor(res.Match, true)
	return res
}

func evalIncome(r *Range, income *float64) outcome {
	if income == nil {
		return outcome{missing: true}
	}
	v := *income
	if r.contains(v) {
		return outcome{score: Pass}
	}
	bound := r.nearestBound(v)
	tol := bound * incomeTolerance
	if r.distance(v) <= tol {
		return outcome{score: Partial}
	}
	return outcome{score: Fail}
}

func evalAge(r *Range, age *int) outcome {
	if age == nil {
		return outcome{missing: true}
	}
	v := float64(*age)
	if r.contains(v) {
		return outcome{score: Pass}
	}
	if r.distance(v) <= ageTolerance {
		return outcome{score: Partial}
	}
	return outcome{score: Fail}
}

// evalResidency matches hierarchical region codes such as "US-CA-94110".
// A user region inside an allowed region passes; a user region that only
// encloses an allowed region is partial.
func evalResidency(allowed, user []string) outcome {
	if len(user) == 0 {
		return outcome{missing: true}
	}
	best := Fail
	for _, u := range user {
		for _, a := range allowed {
			switch {
			case withinRegion(u, a):
				return outcome{score: Pass}
			case withinRegion(a, u):
				best = Partial
			}
		}
	}
	return outcome{score: best}
}

// withinRegion reports whether region equals or is a sub-region of parent.
func withinRegion(region, parent string) bool {
	r := normRegion(region)
	p := normRegion(parent)
	if r == "" || p == "" {
		return false
	}
	return r == p || strings.HasPrefix(r, p+"-")
}

func normRegion(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func evalDocuments(required, held []string) outcome {
	if len(held) == 0 {
		return outcome{missing: true}
	}
	have := 0
	for _, r := range required {
		if containsFold(held, r) {
			have++
		}
	}
	switch {
	case have == len(required):
		return outcome{score: Pass}
	case have > 0:
		return outcome{score: Partial}
	default:
		return outcome{score: Fail}
	}
}

func evalOther(c Criterion, d query.Demographics) outcome {
	switch c.Kind {
	case KindTag:
		if len(d.Tags) == 0 {
			return outcome{missing: true}
		}
		if containsFold(d.Tags, c.Tag) {
			return outcome{score: Pass}
		}
		return outcome{score: Fail}
	case KindHouseholdSize:
		if d.HouseholdSize == nil {
			return outcome{missing: true}
		}
		if c.Range.contains(float64(*d.HouseholdSize)) {
			return outcome{score: Pass}
		}
		return outcome{score: Fail}
	default:
		return evalPredicate(c, d)
	}
}

func evalPredicate(c Criterion, d query.Demographics) outcome {
	switch c.Key {
	case KeyIncome:
		if d.Income == nil {
			return outcome{missing: true}
		}
		return compareNumber(*d.Income, c)
	case KeyAge:
		if d.Age == nil {
			return outcome{missing: true}
		}
		return compareNumber(float64(*d.Age), c)
	case KeyHouseholdSize:
		if d.HouseholdSize == nil {
			return outcome{missing: true}
		}
		return compareNumber(float64(*d.HouseholdSize), c)
	case KeyResidency:
		return compareSet(d.Residency, c)
	case KeyTags:
		return compareSet(d.Tags, c)
	default:
		return compareSet(d.DocumentsHeld, c)
	}
}

func compareNumber(v float64, c Criterion) outcome {
	if c.Op == OpIn {
		for _, s := range c.Values {
			if f, err := strconv.ParseFloat(s, 64); err == nil && f == v {
				return outcome{score: Pass}
			}
		}
		return outcome{score: Fail}
	}
	want, _ := strconv.ParseFloat(c.Value, 64) // operand checked by validate
	var ok bool
	switch c.Op {
	case OpEq:
		ok = v == want
	case OpNeq:
		ok = v != want
	case OpGte:
		ok = v >= want
	case OpLte:
		ok = v <= want
	}
	return passIf(ok)
}

func compareSet(have []string, c Criterion) outcome {
	if len(have) == 0 {
		return outcome{missing: true}
	}
	switch c.Op {
	case OpIn:
		for _, v := range c.Values {
			if containsFold(have, v) {
				return outcome{score: Pass}
			}
		}
		return outcome{score: Fail}
	case OpNeq:
		return passIf(!containsFold(have, c.Value))
	default:
		return passIf(containsFold(have, c.Value))
	}
}

func passIf(ok bool) outcome {
	if ok {
		return outcome{score: Pass}
	}
	return outcome{score: Fail}
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
