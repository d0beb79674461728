package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrResourceNotFound signals a missing resource.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrMalformedVector signals a zero-norm or non-finite vector.
	ErrMalformedVector = errors.New("malformed vector")
	// ErrTopKOutOfRange signals a requested result count outside the allowed range.
	ErrTopKOutOfRange = errors.New("top_k out of range")
	// ErrInvalidResource signals a resource that fails validation.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrInvalidFeedback signals a rejected feedback record.
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrMalformedScore signals scores that cannot be explained.
	ErrMalformedScore = errors.New("malformed score")

	// ErrEmptyQuery signals a query without usable intent or embedding.
	ErrEmptyQuery = errors.New("empty query")
	// ErrUnsupportedLanguage signals a query language the service does not handle.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrIndexDegraded signals that retrieval could not meet its quality bar.
	ErrIndexDegraded = errors.New("index degraded")
	// ErrInvalidTransition signals an illegal request lifecycle transition.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrLearningInProgress signals that a learning cycle is already running.
	ErrLearningInProgress = errors.New("learning cycle already running")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbedderUnavailable signals that no upstream embedder is configured.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
)

// InvalidFeedbackError wraps ErrInvalidFeedback with the offending field.
type InvalidFeedbackError struct {
	Field  string
	Reason string
}

func (e *InvalidFeedbackError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidFeedback.Error(), e.Field, e.Reason)
}

func (e *InvalidFeedbackError) Unwrap() error { return ErrInvalidFeedback }

// NewInvalidFeedback creates an invalid feedback error.
func NewInvalidFeedback(field, reason string) error {
	return &InvalidFeedbackError{Field: field, Reason: reason}
}

// MalformedScoreError wraps ErrMalformedScore with the sub-score that failed.
type MalformedScoreError struct {
	Field string
	Value float64
}

func (e *MalformedScoreError) Error() string {
	return fmt.Sprintf("%s: %s=%v", ErrMalformedScore.Error(), e.Field, e.Value)
}

func (e *MalformedScoreError) Unwrap() error { return ErrMalformedScore }

// NewMalformedScore creates a malformed score error.
func NewMalformedScore(field string, value float64) error {
	return &MalformedScoreError{Field: field, Value: value}
}
