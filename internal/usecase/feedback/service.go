package feedback

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resmatch/internal/domain"
	domfb "github.com/kailas-cloud/resmatch/internal/domain/feedback"
	"github.com/kailas-cloud/resmatch/internal/metrics"
)

// Acknowledgment texts.
const (
	ackMessage    = "Thank you. Your feedback was recorded without any personal details and will help improve future recommendations."
	useRanking    = "ranking adjustments for similar requests"
	useDataReview = "resource data review"
)

var idRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Config bounds accepted feedback.
type Config struct {
	MaxCommentLength int
}

// Service validates and records outcome feedback.
type Service struct {
	repo    Repository
	flagger Flagger
	traces  TraceReader
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// New creates a feedback service. traces may be nil.
func New(repo Repository, flagger Flagger, traces TraceReader, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxCommentLength <= 0 {
		cfg.MaxCommentLength = 2000
	}
	return &Service{
		repo:    repo,
		flagger: flagger,
		traces:  traces,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Submit validates f, appends it to the ledger and flags the resource when
// negative feedback names an issue. Nothing is written for rejected input.
func (s *Service) Submit(ctx context.Context, f domfb.Feedback) (domfb.Acknowledgment, error) {
	if err := s.validate(ctx, &f); err != nil {
		return domfb.Acknowledgment{}, err
	}
	f.ID = s.newID()

	if _, err := s.repo.Append(ctx, &f); err != nil {
		return domfb.Acknowledgment{}, fmt.Errorf("append feedback: %w", err)
	}

	outcome := "unhelpful"
	if f.Helpful {
		outcome = "helpful"
	}
	metrics.FeedbackTotal.WithLabelValues(outcome).Inc()

	ack := domfb.Acknowledgment{
		FeedbackID: f.ID,
		ReceivedAt: s.now().UTC(),
		Message:    ackMessage,
		Uses:       []string{useRanking},
	}
	if f.NeedsReview() {
		if err := s.flagger.Flag(ctx, f.ResourceID, "feedback:"+string(f.IssueType)); err != nil {
			s.logger.Warn("Failed to flag resource from feedback",
				zap.String("resource_id", f.ResourceID), zap.String("feedback_id", f.ID), zap.Error(err))
		} else {
			ack.FlaggedForReview = true
			ack.Uses = append(ack.Uses, useDataReview)
		}
	}
	return ack, nil
}

func (s *Service) validate(ctx context.Context, f *domfb.Feedback) error {
	f.QueryID = strings.TrimSpace(f.QueryID)
	f.ResourceID = strings.TrimSpace(f.ResourceID)

	switch {
	case f.QueryID == "":
		return domain.NewInvalidFeedback("query_id", "required")
	case !idRe.MatchString(f.QueryID):
		return domain.NewInvalidFeedback("query_id", "malformed identifier")
	case f.ResourceID == "":
		return domain.NewInvalidFeedback("resource_id", "required")
	case !idRe.MatchString(f.ResourceID):
		return domain.NewInvalidFeedback("resource_id", "malformed identifier")
	case f.Timestamp.IsZero():
		return domain.NewInvalidFeedback("timestamp", "required")
	case f.Timestamp.After(s.now().Add(5 * time.Minute)):
		return domain.NewInvalidFeedback("timestamp", "in the future")
	case f.Rating != nil && (*f.Rating < 1 || *f.Rating > 5):
		return domain.NewInvalidFeedback("rating", "must be between 1 and 5")
	}

	issue, err := domfb.ParseIssueType(string(f.IssueType))
	if err != nil {
		return domain.NewInvalidFeedback("issue_type", err.Error())
	}
	f.IssueType = issue

	f.Comment = strings.TrimSpace(f.Comment)
	if utf8.RuneCountInString(f.Comment) > s.cfg.MaxCommentLength {
		return domain.NewInvalidFeedback("comment", "too long")
	}
	if label, found := detectPII(f.Comment); found {
		return domain.NewInvalidFeedback("comment", "contains personal information ("+label+")")
	}

	return s.checkDelivered(ctx, f)
}

// checkDelivered rejects feedback for a resource the query never delivered.
// Expired or missing traces are accepted.
func (s *Service) checkDelivered(ctx context.Context, f *domfb.Feedback) error {
	if s.traces == nil {
		return nil
	}
	tr, err := s.traces.Get(ctx, f.QueryID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Trace lookup failed", zap.String("query_id", f.QueryID), zap.Error(err))
		}
		return nil
	}
	if !slices.Contains(tr.Delivered, f.ResourceID) {
		return domain.NewInvalidFeedback("resource_id", "not delivered for this query")
	}
	return nil
}

// Get returns one stored record.
func (s *Service) Get(ctx context.Context, id string) (domfb.Feedback, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return domfb.Feedback{}, fmt.Errorf("get feedback: %w", err)
	}
	return f, nil
}

// ByQuery lists the records submitted for a query.
func (s *Service) ByQuery(ctx context.Context, queryID string) ([]domfb.Feedback, error) {
	list, err := s.repo.ByQuery(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("feedback by query: %w", err)
	}
	return list, nil
}

// ByResource lists the records submitted for a resource.
func (s *Service) ByResource(ctx context.Context, resourceID string) ([]domfb.Feedback, error) {
	list, err := s.repo.ByResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("feedback by resource: %w", err)
	}
	return list, nil
}
