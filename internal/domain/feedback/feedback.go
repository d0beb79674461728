// Package feedback holds outcome feedback records. Records carry no user
// identity: only the query id, the resource id and the outcome.
package feedback

import (
	"fmt"
	"strings"
	"time"
)

// IssueType classifies negative feedback.
type IssueType string

// Issue types accepted on negative feedback.
const (
	IssueNone        IssueType = ""
	IssueWrongInfo   IssueType = "wrong_info"
	IssueClosed      IssueType = "closed"
	IssueNotEligible IssueType = "not_eligible"
	IssueNoResponse  IssueType = "no_response"
	IssueOther       IssueType = "other"
)

// ParseIssueType validates an issue type. Empty is allowed.
func ParseIssueType(s string) (IssueType, error) {
	switch t := IssueType(strings.ToLower(strings.TrimSpace(s))); t {
	case IssueNone, IssueWrongInfo, IssueClosed, IssueNotEligible, IssueNoResponse, IssueOther:
		return t, nil
	default:
		return "", fmt.Errorf("unknown issue type %q", s)
	}
}

// Feedback is one outcome report for a delivered recommendation.
type Feedback struct {
	ID         string    `json:"id"`
	QueryID    string    `json:"query_id"`
	ResourceID string    `json:"resource_id"`
	Helpful    bool      `json:"helpful"`
	Rating     *int      `json:"rating,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	IssueType  IssueType `json:"issue_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NeedsReview reports whether the record should flag its resource.
func (f Feedback) NeedsReview() bool {
	return !f.Helpful && f.IssueType != IssueNone
}

// Success returns the helpful signal and, when a rating exists, the rating
// mapped onto [0,1].
func (f Feedback) Success() (helpful float64, rating float64, hasRating bool) {
	if f.Helpful {
		helpful = 1
	}
	if f.Rating != nil {
		return helpful, float64(*f.Rating-1) / 4, true
	}
	return helpful, 0, false
}

// Acknowledgment is returned for every accepted feedback submission.
type Acknowledgment struct {
	FeedbackID       string    `json:"feedback_id"`
	ReceivedAt       time.Time `json:"received_at"`
	FlaggedForReview bool      `json:"flagged_for_review"`
	Message          string    `json:"message"`
	Uses             []string  `json:"uses"`
}

// Entry is a ledger record with its stream cursor.
type Entry struct {
	Cursor   string
	Feedback Feedback
}
