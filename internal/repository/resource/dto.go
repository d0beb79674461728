package resource

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/kailas-cloud/resmatch/internal/db"
	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/geo"
	domres "github.com/kailas-cloud/resmatch/internal/domain/resource"
)

// Hash field names of a stored resource.
const (
	fieldDoc        = "doc"
	fieldCategory   = "category"
	fieldCapacity   = "capacity"
	fieldRetired    = "retired"
	fieldFlagged    = "flagged"
	fieldFlagReason = "flag_reason"
	fieldVersion    = "version"
	fieldUpdatedAt  = "updated_at"
	fieldVector     = "__vector"

	// vectorAlias is the name KNN queries use for fieldVector.
	vectorAlias = "vector"
)

// resourceDoc is the JSON document holding descriptive attributes.
type resourceDoc struct {
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Category      string               `json:"category"`
	Subcategories []string             `json:"subcategories,omitempty"`
	Keywords      []string             `json:"keywords,omitempty"`
	Provider      domres.Provider      `json:"provider"`
	Location      *geo.Point           `json:"location,omitempty"`
	ServiceArea   geo.ServiceArea      `json:"service_area"`
	Languages     []string             `json:"languages,omitempty"`
	Accessibility []string             `json:"accessibility,omitempty"`
	Eligibility   eligibility.Criteria `json:"eligibility"`
	Capacity      domres.Capacity      `json:"capacity"`
	LastVerified  time.Time            `json:"last_verified"`
}

func toFields(r *domres.Resource) (map[string]string, error) {
	a := r.Attributes()
	doc, err := json.Marshal(resourceDoc{
		Name: a.Name, Description: a.Description, Category: a.Category,
		Subcategories: a.Subcategories, Keywords: a.Keywords, Provider: a.Provider,
		Location: a.Location, ServiceArea: a.ServiceArea, Languages: a.Languages,
		Accessibility: a.Accessibility, Eligibility: a.Eligibility,
		Capacity: a.Capacity, LastVerified: a.LastVerified,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal resource %s: %w", r.ID(), err)
	}
	return map[string]string{
		fieldDoc:        string(doc),
		fieldCategory:   a.Category,
		fieldCapacity:   string(a.Capacity),
		fieldRetired:    boolField(r.Retired()),
		fieldFlagged:    boolField(r.Flagged()),
		fieldFlagReason: r.FlagReason(),
		fieldVersion:    strconv.Itoa(r.Version()),
		fieldUpdatedAt:  r.UpdatedAt().UTC().Format(time.RFC3339Nano),
		fieldVector:     db.EncodeVector(r.Embedding()),
	}, nil
}

func fromFields(id string, m map[string]string) (domres.Resource, error) {
	var doc resourceDoc
	if err := json.Unmarshal([]byte(m[fieldDoc]), &doc); err != nil {
		return domres.Resource{}, fmt.Errorf("unmarshal resource %s: %w", id, err)
	}
	vec, err := db.DecodeVector(m[fieldVector])
	if err != nil {
		return domres.Resource{}, fmt.Errorf("decode vector %s: %w", id, err)
	}
	version, _ := strconv.Atoi(m[fieldVersion])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m[fieldUpdatedAt])

	attrs := domres.Attributes{
		Name: doc.Name, Description: doc.Description, Category: doc.Category,
		Subcategories: doc.Subcategories, Keywords: doc.Keywords, Provider: doc.Provider,
		Location: doc.Location, ServiceArea: doc.ServiceArea, Languages: doc.Languages,
		Accessibility: doc.Accessibility, Eligibility: doc.Eligibility,
		Capacity: doc.Capacity, LastVerified: doc.LastVerified,
	}
	return domres.Reconstruct(
		id, attrs, vec,
		m[fieldFlagged] == "1", m[fieldFlagReason], m[fieldRetired] == "1",
		version, updatedAt,
	), nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
