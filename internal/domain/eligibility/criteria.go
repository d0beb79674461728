// Package eligibility evaluates a resource's eligibility criteria against a
// user's context. Evaluation is pure and safe for concurrent use.
package eligibility

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive numeric interval. A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// NewRange builds a closed range.
func NewRange(lo, hi float64) *Range { return &Range{Min: &lo, Max: &hi} }

// AtMost builds a range with only an upper bound.
func AtMost(hi float64) *Range { return &Range{Max: &hi} }

// AtLeast builds a range with only a lower bound.
func AtLeast(lo float64) *Range { return &Range{Min: &lo} }

func (r *Range) validate() error {
	if r.Min == nil && r.Max == nil {
		return fmt.Errorf("range has no bounds")
	}
	if r.Min != nil && *r.Min < 0 {
		return fmt.Errorf("negative minimum %v", *r.Min)
	}
	if r.Max != nil && *r.Max < 0 {
		return fmt.Errorf("negative maximum %v", *r.Max)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("minimum %v above maximum %v", *r.Min, *r.Max)
	}
	return nil
}

func (r *Range) contains(v float64) bool {
	return (r.Min == nil || v >= *r.Min) && (r.Max == nil || v <= *r.Max)
}

// distance returns how far v sits outside the range, 0 when inside.
func (r *Range) distance(v float64) float64 {
	if r.Min != nil && v < *r.Min {
		return *r.Min - v
	}
	if r.Max != nil && v > *r.Max {
		return v - *r.Max
	}
	return 0
}

// nearestBound returns the bound v is closest to when outside the range.
func (r *Range) nearestBound(v float64) float64 {
	if r.Min != nil && v < *r.Min {
		return *r.Min
	}
	if r.Max != nil {
		return *r.Max
	}
	return v
}

// Kind enumerates the closed set of "other" criterion kinds.
type Kind string

const (
	// KindTag requires a demographic tag such as "veteran" or "senior".
	KindTag Kind = "tag"
	// KindHouseholdSize constrains household size.
	KindHouseholdSize Kind = "household_size"
	// KindPredicate is a generic key/op/value test with a human description.
	KindPredicate Kind = "predicate"
)

// Op is a predicate comparison operator.
type Op string

// Predicate operators.
const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGte Op = "gte"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Predicate keys resolvable against demographics.
const (
	KeyIncome        = "income"
	KeyAge           = "age"
	KeyHouseholdSize = "household_size"
	KeyResidency     = "residency"
	KeyTags          = "tags"
	KeyDocuments     = "documents"
)

// Criterion is one entry of the tagged "other criteria" variant.
type Criterion struct {
	Kind        Kind     `json:"kind"`
	Description string   `json:"description,omitempty"`
	Tag         string   `json:"tag,omitempty"`
	Range       *Range   `json:"range,omitempty"`
	Key         string   `json:"key,omitempty"`
	Op          Op       `json:"op,omitempty"`
	Value       string   `json:"value,omitempty"`
	Values      []string `json:"values,omitempty"`
}

// label names the criterion in missing-info and invalid lists.
func (c Criterion) label() string {
	switch c.Kind {
	case KindTag:
		return "tag:" + strings.ToLower(c.Tag)
	case KindHouseholdSize:
		return KeyHouseholdSize
	case KindPredicate:
		return c.Key
	default:
		return string(c.Kind)
	}
}

func (c Criterion) validate() error {
	switch c.Kind {
	case KindTag:
		if strings.TrimSpace(c.Tag) == "" {
			return fmt.Errorf("tag criterion without tag")
		}
	case KindHouseholdSize:
		if c.Range == nil {
			return fmt.Errorf("household_size criterion without range")
		}
		return c.Range.validate()
	case KindPredicate:
		switch c.Key {
		case KeyIncome, KeyAge, KeyHouseholdSize, KeyResidency, KeyTags, KeyDocuments:
		default:
			return fmt.Errorf("unknown predicate key %q", c.Key)
		}
		switch c.Op {
		case OpEq, OpNeq, OpGte, OpLte:
			if c.Value == "" {
				return fmt.Errorf("predicate %s without value", c.Op)
			}
		case OpIn:
			if len(c.Values) == 0 {
				return fmt.Errorf("predicate in without values")
			}
		default:
			return fmt.Errorf("unknown predicate op %q", c.Op)
		}
		return c.validateOperand()
	default:
		return fmt.Errorf("unknown criterion kind %q", c.Kind)
	}
	return nil
}

// Criteria is a resource's eligibility rules. Absent sub-criteria are no constraint.
type Criteria struct {
	Income        *Range      `json:"income,omitempty"`
	Age           *Range      `json:"age,omitempty"`
	Residency     []string    `json:"residency,omitempty"`
	Documentation []string    `json:"documentation,omitempty"`
	Other         []Criterion `json:"other,omitempty"`
}

// IsEmpty reports whether no sub-criteria are specified.
func (c Criteria) IsEmpty() bool {
	return c.Income == nil && c.Age == nil && len(c.Residency) == 0 &&
		len(c.Documentation) == 0 && len(c.Other) == 0
}

// validateOperand rejects ordering ops over set-valued keys and
// non-numeric operands over numeric keys.
func (c Criterion) validateOperand() error {
	switch c.Key {
	case KeyIncome, KeyAge, KeyHouseholdSize:
		operands := c.Values
		if c.Op != OpIn {
			operands = []string{c.Value}
		}
		for _, s := range operands {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return fmt.Errorf("non-numeric operand %q for %s", s, c.Key)
			}
		}
	default:
		if c.Op == OpGte || c.Op == OpLte {
			return fmt.Errorf("op %s not supported for %s", c.Op, c.Key)
		}
	}
	return nil
}
