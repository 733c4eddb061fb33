package ports

import (
	"context"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// QueryRouter is the single entry point consumed by the API layer.
type QueryRouter interface {
	Route(ctx context.Context, query domain.Query) (*domain.RouteResult, error)
}

// FeedbackRecorder attaches user feedback to a completed routing outcome.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, outcomeID string, score float64) error
}

// ThresholdAdmin is the operator surface over the live threshold set.
type ThresholdAdmin interface {
	CurrentThresholds() domain.ThresholdSet
	ThresholdHistory() []domain.ThresholdSet
	OverrideThresholds(ctx context.Context, set domain.ThresholdSet) error
}

// TuningService runs analysis/recommendation/apply cycles.
type TuningService interface {
	RunOnce(ctx context.Context, dryRun bool) (*domain.TuningResult, error)
	LastAnalysis() *domain.PerformanceAnalysis
}
