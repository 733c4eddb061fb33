package usecase

import (
	"context"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

// ThresholdAdminService is the operator surface over the live threshold
// store: read current and historical sets, and install manual overrides
// that pin themselves against the tuner.
type ThresholdAdminService struct {
	thresholds *ThresholdStore
}

func NewThresholdAdminService(thresholds *ThresholdStore) *ThresholdAdminService {
	return &ThresholdAdminService{thresholds: thresholds}
}

var _ ports.ThresholdAdmin = (*ThresholdAdminService)(nil)

func (s *ThresholdAdminService) CurrentThresholds() domain.ThresholdSet {
	return s.thresholds.Current()
}

func (s *ThresholdAdminService) ThresholdHistory() []domain.ThresholdSet {
	versions := s.thresholds.History()
	out := make([]domain.ThresholdSet, len(versions))
	for i, v := range versions {
		out[i] = v.Set
	}
	return out
}

func (s *ThresholdAdminService) OverrideThresholds(_ context.Context, set domain.ThresholdSet) error {
	return s.thresholds.Override(set)
}

// PinnedFields exposes the operator pins for the admin API.
func (s *ThresholdAdminService) PinnedFields() []ThresholdField {
	return s.thresholds.Pinned()
}

// ClearPins returns every field to tuner control.
func (s *ThresholdAdminService) ClearPins() {
	s.thresholds.ClearPins()
}
