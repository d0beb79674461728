package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
)

// Stage is a step of a query's lifecycle.
type Stage string

// Lifecycle stages.
const (
	StageSubmitted        Stage = "submitted"
	StageRetrieved        Stage = "retrieved"
	StageFiltered         Stage = "filtered"
	StageRanked           Stage = "ranked"
	StageExplained        Stage = "explained"
	StageDelivered        Stage = "delivered"
	StageFeedbackReceived Stage = "feedback_received"
)

var transitions = map[Stage][]Stage{
	StageSubmitted:        {StageRetrieved},
	StageRetrieved:        {StageFiltered},
	StageFiltered:         {StageRanked},
	StageRanked:           {StageExplained},
	StageExplained:        {StageDelivered},
	StageDelivered:        {StageFeedbackReceived},
	StageFeedbackReceived: {StageFeedbackReceived},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// lifecycle tracks one query through the stages.
type lifecycle struct {
	queryID string
	stage   Stage
	logger  *zap.Logger
}

func newLifecycle(queryID string, logger *zap.Logger) *lifecycle {
	return &lifecycle{queryID: queryID, stage: StageSubmitted, logger: logger}
}

func (l *lifecycle) advance(to Stage) error {
	if !CanTransition(l.stage, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, l.stage, to)
	}
	l.logger.Debug("Query stage",
		zap.String("query_id", l.queryID),
		zap.String("from", string(l.stage)),
		zap.String("to", string(to)),
	)
	l.stage = to
	return nil
}
