package resmatch

import (
	"github.com/kailas-cloud/resmatch/internal/domain"
	"github.com/kailas-cloud/resmatch/internal/usecase/pipeline"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrResourceNotFound       = domain.ErrResourceNotFound
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrMalformedVector        = domain.ErrMalformedVector
	ErrInvalidResource        = domain.ErrInvalidResource
	ErrTopKOutOfRange         = domain.ErrTopKOutOfRange
	ErrInvalidFeedback        = domain.ErrInvalidFeedback
	ErrLearningInProgress     = domain.ErrLearningInProgress
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)

// PipelineError is returned by Recommend for contract violations.
// Use errors.As() to read its Code.
type PipelineError = pipeline.PipelineError

// InvalidFeedbackError names the feedback field that was rejected.
type InvalidFeedbackError = domain.InvalidFeedbackError
