package resource

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/domain/geo"
)

func validAttrs() Attributes {
	return Attributes{Name: "Mission Food Pantry", Category: " Food ", Capacity: CapacityAccepting}
}

func TestNew_Valid(t *testing.T) {
	r, err := New("pantry-1", validAttrs(), []float32{3, 4, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Category() != "food" {
		t.Errorf("category = %q", r.Category())
	}
	if n := domain.Norm(r.Embedding()); n < 0.999 || n > 1.001 {
		t.Errorf("embedding not normalized: %v", n)
	}
	if r.Version() != 1 {
		t.Errorf("version = %d", r.Version())
	}
}

func TestNew_DefaultsCapacity(t *testing.T) {
	a := validAttrs()
	a.Capacity = ""
	r, err := New("r1", a, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Capacity() != CapacityAccepting {
		t.Errorf("capacity = %s", r.Capacity())
	}
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		attrs func() Attributes
		emb   []float32
		want  error
	}{
		{"empty id", "", validAttrs, []float32{1, 0, 0}, domain.ErrInvalidResource},
		{"bad id", "a b", validAttrs, []float32{1, 0, 0}, domain.ErrInvalidResource},
		{"no category", "r", func() Attributes { a := validAttrs(); a.Category = ""; return a }, []float32{1, 0, 0}, domain.ErrInvalidResource},
		{"bad capacity", "r", func() Attributes { a := validAttrs(); a.Capacity = "open"; return a }, []float32{1, 0, 0}, domain.ErrInvalidResource},
		{"bad location", "r", func() Attributes { a := validAttrs(); a.Location = &geo.Point{Lat: 100}; return a }, []float32{1, 0, 0}, domain.ErrInvalidResource},
		{"wrong dim", "r", validAttrs, []float32{1, 0}, domain.ErrVectorDimMismatch},
		{"zero vector", "r", validAttrs, []float32{0, 0, 0}, domain.ErrMalformedVector},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.id, tc.attrs(), tc.emb, 3)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWithEmbedding_LeavesOriginal(t *testing.T) {
	r, _ := New("r1", validAttrs(), []float32{1, 0, 0}, 3)
	orig := r.Embedding()

	next := r.WithEmbedding([]float32{0, 1, 0}, time.Unix(10, 0))

	if orig[0] != 1 || r.Embedding()[0] != 1 {
		t.Error("original embedding changed")
	}
	if next.Embedding()[1] != 1 || next.Version() != 2 {
		t.Errorf("next = %v v%d", next.Embedding(), next.Version())
	}
}

func TestCapacity_Availability(t *testing.T) {
	if CapacityAccepting.Availability() != 1 || CapacityWaitlist.Availability() != 0.5 || CapacityFull.Availability() != 0 {
		t.Error("unexpected availability mapping")
	}
	if _, err := ParseCapacity("FULL"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
