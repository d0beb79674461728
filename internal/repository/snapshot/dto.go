package snapshot

import (
	"time"

	"github.com/kailas-cloud/resmatch/internal/domain/insight"
)

type snapshotDTO struct {
	Version   int64                      `json:"version"`
	CreatedAt time.Time                  `json:"created_at"`
	Cursor    string                     `json:"cursor"`
	Smoothing float64                    `json:"smoothing"`
	Patterns  map[string]insight.Pattern `json:"patterns"`
	Pending   map[string]insight.Tally   `json:"pending,omitempty"`
}

func toDTO(s *insight.Snapshot) snapshotDTO {
	d := snapshotDTO{
		Version:   s.Version(),
		CreatedAt: s.CreatedAt().UTC(),
		Cursor:    s.Cursor(),
		Smoothing: s.Smoothing(),
		Patterns:  make(map[string]insight.Pattern, s.Len()),
	}
	for k, p := range s.Patterns() {
		d.Patterns[k.String()] = p
	}
	if pending := s.Pending(); len(pending) > 0 {
		d.Pending = make(map[string]insight.Tally, len(pending))
		for k, t := range pending {
			d.Pending[k.String()] = t
		}
	}
	return d
}

func fromDTO(d snapshotDTO) *insight.Snapshot {
	patterns := make(map[insight.ClusterKey]insight.Pattern, len(d.Patterns))
	for raw, p := range d.Patterns {
		if k, ok := insight.ParseClusterKey(raw); ok {
			patterns[k] = p
		}
	}
	pending := make(map[insight.ClusterKey]insight.Tally, len(d.Pending))
	for raw, t := range d.Pending {
		if k, ok := insight.ParseClusterKey(raw); ok {
			pending[k] = t
		}
	}
	return insight.New(d.Version, d.CreatedAt, d.Cursor, d.Smoothing, patterns, pending)
}
