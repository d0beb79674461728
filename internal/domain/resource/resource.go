// Package resource holds the Resource aggregate: a community service with
// its metadata, eligibility rules and embedding.
package resource

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/eligibility"
	"github.com/kailas-cloud/resmatch/internal/domain/geo"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Capacity is a resource's intake state.
type Capacity string

const (
	// CapacityAccepting means the resource takes new clients.
	CapacityAccepting Capacity = "accepting"
	// CapacityWaitlist means new clients join a waitlist.
	CapacityWaitlist Capacity = "waitlist"
	// CapacityFull means the resource takes nobody right now.
	CapacityFull Capacity = "full"
)

// ParseCapacity validates a capacity string.
func ParseCapacity(s string) (Capacity, error) {
	switch c := Capacity(strings.ToLower(s)); c {
	case CapacityAccepting, CapacityWaitlist, CapacityFull:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capacity %q", s)
	}
}

// Availability maps capacity to the ranking availability factor.
func (c Capacity) Availability() float64 {
	switch c {
	case CapacityAccepting:
		return 1.0
	case CapacityWaitlist:
		return 0.5
	default:
		return 0.0
	}
}

// Provider identifies the organization operating a resource.
type Provider struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
}

// Attributes are the descriptive fields handed over by ingestion.
type Attributes struct {
	Name          string
	Description   string
	Category      string
	Subcategories []string
	Keywords      []string
	Provider      Provider
	Location      *geo.Point
	ServiceArea   geo.ServiceArea
	Languages     []string
	Accessibility []string
	Eligibility   eligibility.Criteria
	Capacity      Capacity
	LastVerified  time.Time
}

// Resource is the resource aggregate (immutable value object).
type Resource struct {
	id    string
	attrs Attributes

	embedding  []float32
	flagged    bool
	flagReason string
	retired    bool
	version    int
	updatedAt  time.Time
}

// New validates and creates a Resource. The embedding must match dim.
func New(id string, attrs Attributes, embedding []float32, dim int) (Resource, error) {
	if id == "" {
		return Resource{}, fmt.Errorf("%w: id is required", domain.ErrInvalidResource)
	}
	if len(id) > 256 || !idRegex.MatchString(id) {
		return Resource{}, fmt.Errorf("%w: id must be alphanumeric with underscores and hyphens", domain.ErrInvalidResource)
	}
	if strings.TrimSpace(attrs.Name) == "" {
		return Resource{}, fmt.Errorf("%w: name is required", domain.ErrInvalidResource)
	}
	if strings.TrimSpace(attrs.Category) == "" {
		return Resource{}, fmt.Errorf("%w: category is required", domain.ErrInvalidResource)
	}
	if attrs.Capacity == "" {
		attrs.Capacity = CapacityAccepting
	}
	if _, err := ParseCapacity(string(attrs.Capacity)); err != nil {
		return Resource{}, fmt.Errorf("%w: %w", domain.ErrInvalidResource, err)
	}
	if attrs.Location != nil && !geo.ValidateCoordinates(attrs.Location.Lat, attrs.Location.Lon) {
		return Resource{}, fmt.Errorf("%w: location out of range", domain.ErrInvalidResource)
	}
	if err := domain.ValidateVector(embedding, dim); err != nil {
		return Resource{}, err
	}

	attrs.Category = NormalizeCategory(attrs.Category)
	return Resource{
		id:        id,
		attrs:     attrs,
		embedding: domain.Normalize(embedding),
		version:   1,
	}, nil
}

// Reconstruct creates a Resource without validation (storage hydration).
func Reconstruct(
	id string, attrs Attributes, embedding []float32,
	flagged bool, flagReason string, retired bool, version int, updatedAt time.Time,
) Resource {
	return Resource{
		id: id, attrs: attrs, embedding: embedding,
		flagged: flagged, flagReason: flagReason, retired: retired,
		version: version, updatedAt: updatedAt,
	}
}

// NormalizeCategory lowercases and trims a category name.
func NormalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// ID returns the resource identifier.
func (r *Resource) ID() string { return r.id }

// Name returns the display name.
func (r *Resource) Name() string { return r.attrs.Name }

// Description returns the free-text description.
func (r *Resource) Description() string { return r.attrs.Description }

// Category returns the normalized top-level category.
func (r *Resource) Category() string { return r.attrs.Category }

// Subcategories returns the subcategories.
func (r *Resource) Subcategories() []string { return r.attrs.Subcategories }

// Keywords returns the ingestion-supplied search keywords.
func (r *Resource) Keywords() []string { return r.attrs.Keywords }

// Provider returns the operating organization.
func (r *Resource) Provider() Provider { return r.attrs.Provider }

// Location returns the physical location, or nil for remote-only resources.
func (r *Resource) Location() *geo.Point { return r.attrs.Location }

// ServiceArea returns the area the resource serves.
func (r *Resource) ServiceArea() geo.ServiceArea { return r.attrs.ServiceArea }

// Languages returns the languages staff can serve in.
func (r *Resource) Languages() []string { return r.attrs.Languages }

// Accessibility returns the accessibility features.
func (r *Resource) Accessibility() []string { return r.attrs.Accessibility }

// Eligibility returns the eligibility criteria.
func (r *Resource) Eligibility() eligibility.Criteria { return r.attrs.Eligibility }

// Capacity returns the intake state.
func (r *Resource) Capacity() Capacity { return r.attrs.Capacity }

// LastVerified returns when the record was last confirmed accurate.
func (r *Resource) LastVerified() time.Time { return r.attrs.LastVerified }

// Attributes returns a copy of the descriptive fields.
func (r *Resource) Attributes() Attributes { return r.attrs }

// Embedding returns the unit-length embedding. Callers must not mutate it.
func (r *Resource) Embedding() []float32 { return r.embedding }

// Flagged reports whether the resource awaits administrative review.
func (r *Resource) Flagged() bool { return r.flagged }

// FlagReason returns the latest review reason.
func (r *Resource) FlagReason() string { return r.flagReason }

// Retired reports whether the resource is withdrawn from retrieval.
func (r *Resource) Retired() bool { return r.retired }

// Version returns the record revision.
func (r *Resource) Version() int { return r.version }

// UpdatedAt returns when the record was last written.
func (r *Resource) UpdatedAt() time.Time { return r.updatedAt }

// WithEmbedding returns a copy carrying a new embedding and bumped version.
// The old value is left untouched so concurrent readers never see a torn vector.
func (r Resource) WithEmbedding(embedding []float32, at time.Time) Resource {
	r.embedding = embedding
	r.version++
	r.updatedAt = at
	return r
}

// WithFlag returns a flagged copy.
func (r Resource) WithFlag(reason string, at time.Time) Resource {
	r.flagged = true
	r.flagReason = reason
	r.updatedAt = at
	return r
}

// WithRetired returns a retired copy.
func (r Resource) WithRetired(at time.Time) Resource {
	r.retired = true
	r.version++
	r.updatedAt = at
	return r
}

// WithVersion returns a copy with the given version and timestamp, used when
// ingestion replaces an existing record.
func (r Resource) WithVersion(version int, at time.Time) Resource {
	r.version = version
	r.updatedAt = at
	return r
}
