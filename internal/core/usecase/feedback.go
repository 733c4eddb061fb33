package usecase

import (
	"context"
	"errors"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

var (
	errFeedbackRange  = errors.New("feedback score must lie in [0,1]")
	errMissingOutcome = errors.New("outcome id is required")
)

// FeedbackService attaches user quality signals to completed outcomes so
// the tuner can weigh real satisfaction, not just model confidence.
type FeedbackService struct {
	outcomes ports.OutcomeStore
}

func NewFeedbackService(outcomes ports.OutcomeStore) *FeedbackService {
	return &FeedbackService{outcomes: outcomes}
}

var _ ports.FeedbackRecorder = (*FeedbackService)(nil)

func (s *FeedbackService) RecordFeedback(ctx context.Context, outcomeID string, score float64) error {
	if outcomeID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record feedback", errMissingOutcome)
	}
	if score < 0 || score > 1 {
		return domain.WrapError(domain.ErrInvalidInput, "record feedback", errFeedbackRange)
	}
	return s.outcomes.AttachFeedback(ctx, outcomeID, score)
}
