package query

import "time"

// Trace is the anonymous record of a delivered query kept for learning. It
// holds the cluster inputs and the query embedding, never user context.
type Trace struct {
	QueryID     string    `json:"query_id"`
	PrimaryNeed string    `json:"primary_need"`
	Urgency     Urgency   `json:"urgency"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Delivered   []string  `json:"delivered"`
	Categories  []string  `json:"categories"`
	Degraded    bool      `json:"degraded"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryOf returns the category recorded for a delivered resource.
func (t Trace) CategoryOf(resourceID string) (string, bool) {
	for i, id := range t.Delivered {
		if id == resourceID && i < len(t.Categories) {
			return t.Categories[i], true
		}
	}
	return "", false
}
