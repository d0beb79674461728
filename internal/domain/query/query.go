// Package query holds the structured request the NLP collaborator hands to
// the engine: interpreted intent plus the caller's situational context.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/resmatch/internal/domain/geo"
)

// MaxHistory bounds the prior query ids kept in a UserContext.
const MaxHistory = 20

// Urgency classifies how soon help is needed.
type Urgency string

const (
	// UrgencyImmediate means help is needed now.
	UrgencyImmediate Urgency = "immediate"
	// UrgencySoon means help is needed within days.
	UrgencySoon Urgency = "soon"
	// UrgencyPlanning means the user is planning ahead.
	UrgencyPlanning Urgency = "planning"
)

// ParseUrgency maps a raw string to an Urgency. Empty maps to planning.
func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyImmediate:
		return UrgencyImmediate, nil
	case UrgencySoon:
		return UrgencySoon, nil
	case UrgencyPlanning, "":
		return UrgencyPlanning, nil
	default:
		return "", fmt.Errorf("unknown urgency %q", s)
	}
}

// Entity types recognized when deriving demographic context.
const (
	EntityIncome        = "income"
	EntityAge           = "age"
	EntityHouseholdSize = "household_size"
	EntityResidency     = "residency"
	EntityDocument      = "document"
	EntityTag           = "tag"
)

// Entity is a typed value extracted from the query text.
type Entity struct {
	Type       string `json:"type"`
	Value      string `json:"value"`
	Normalized string `json:"normalized,omitempty"`
}

// value prefers the normalized form.
func (e Entity) value() string {
	if e.Normalized != "" {
		return e.Normalized
	}
	return e.Value
}

// Intent is the NLP collaborator's interpretation of a request.
type Intent struct {
	PrimaryNeed    string   `json:"primary_need"`
	SecondaryNeeds []string `json:"secondary_needs,omitempty"`
	Urgency        Urgency  `json:"urgency"`
	Entities       []Entity `json:"entities,omitempty"`
	Confidence     float64  `json:"confidence"`
	Language       string   `json:"language,omitempty"`
}

// Demographics holds optional attributes used for eligibility checks.
// Nil pointers and empty slices mean "not provided".
type Demographics struct {
	Income        *float64 `json:"income,omitempty"`
	Age           *int     `json:"age,omitempty"`
	HouseholdSize *int     `json:"household_size,omitempty"`
	Residency     []string `json:"residency,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	DocumentsHeld []string `json:"documents_held,omitempty"`
}

// UserContext is the per-request situational context. It is never persisted.
type UserContext struct {
	Location           *geo.Point   `json:"location,omitempty"`
	Language           string       `json:"language,omitempty"`
	AccessibilityNeeds []string     `json:"accessibility_needs,omitempty"`
	Demographics       Demographics `json:"demographics"`
	Anonymous          bool         `json:"anonymous"`
	History            []string     `json:"history,omitempty"`
}

// Effective returns a copy of c whose absent demographic fields are filled
// from the intent's entities. Explicit context values win. History is
// truncated to the most recent MaxHistory entries.
func Effective(c UserContext, in Intent) UserContext {
	out := c
	d := c.Demographics
	d.Residency = append([]string(nil), c.Demographics.Residency...)
	d.Tags = append([]string(nil), c.Demographics.Tags...)
	d.DocumentsHeld = append([]string(nil), c.Demographics.DocumentsHeld...)
	fillResidency := len(d.Residency) == 0

	for _, e := range in.Entities {
		v := e.value()
		switch strings.ToLower(e.Type) {
		case EntityIncome:
			if d.Income == nil {
				if f, ok := parseAmount(v); ok {
					d.Income = &f
				}
			}
		case EntityAge:
			if d.Age == nil {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
					d.Age = &n
				}
			}
		case EntityHouseholdSize:
			if d.HouseholdSize == nil {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
					d.HouseholdSize = &n
				}
			}
		case EntityResidency:
			if fillResidency && v != "" {
				d.Residency = append(d.Residency, v)
			}
		case EntityDocument:
			if v != "" && !containsFold(d.DocumentsHeld, v) {
				d.DocumentsHeld = append(d.DocumentsHeld, v)
			}
		case EntityTag:
			if v != "" && !containsFold(d.Tags, v) {
				d.Tags = append(d.Tags, v)
			}
		}
	}

	out.Demographics = d
	if len(c.History) > MaxHistory {
		out.History = append([]string(nil), c.History[len(c.History)-MaxHistory:]...)
	}
	if out.Language == "" {
		out.Language = in.Language
	}
	return out
}

// parseAmount accepts "1800", "$1,800" and "1800.50".
func parseAmount(s string) (float64, bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
