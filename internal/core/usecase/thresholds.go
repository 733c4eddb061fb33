package usecase

import (
	"sync"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// ThresholdField names one tunable cut point for pinning.
type ThresholdField string

const (
	FieldComplexitySimple  ThresholdField = "complexity_simple"
	FieldComplexityComplex ThresholdField = "complexity_complex"
	FieldConfidenceHigh    ThresholdField = "confidence_high"
	FieldConfidenceLow     ThresholdField = "confidence_low"
)

// ThresholdVersion is one historical snapshot of the live set.
type ThresholdVersion struct {
	Version   int                 `json:"version"`
	Set       domain.ThresholdSet `json:"set"`
	Source    string              `json:"source"`
	AppliedAt time.Time           `json:"applied_at"`
}

const (
	thresholdSourceInitial  = "initial"
	thresholdSourceTuner    = "tuner"
	thresholdSourceOperator = "operator"
	thresholdSourceRollback = "rollback"
)

// Routing threads read the live set on every query while the tuner and the
// admin surface swap it. A snapshot copy keeps readers lock-free of partial
// updates; history is bounded to the most recent versions.
const thresholdHistoryLimit = 50

// ThresholdStore owns the live threshold set, its version history, and the
// operator pins that the tuner must not override.
type ThresholdStore struct {
	mu      sync.RWMutex
	current ThresholdVersion
	history []ThresholdVersion
	pinned  map[ThresholdField]bool
	now     func() time.Time
}

func NewThresholdStore(initial domain.ThresholdSet) (*ThresholdStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &ThresholdStore{
		pinned: make(map[ThresholdField]bool),
		now:    time.Now,
	}
	s.current = ThresholdVersion{Version: 1, Set: initial, Source: thresholdSourceInitial, AppliedAt: s.now()}
	s.history = []ThresholdVersion{s.current}
	return s, nil
}

// Current returns the live set. Callers receive a value copy and may use it
// for the full duration of a request without seeing mid-request changes.
func (s *ThresholdStore) Current() domain.ThresholdSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Set
}

// CurrentVersion returns the live snapshot with version metadata.
func (s *ThresholdStore) CurrentVersion() ThresholdVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// History returns snapshots newest-first.
func (s *ThresholdStore) History() []ThresholdVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ThresholdVersion, len(s.history))
	for i, v := range s.history {
		out[len(s.history)-1-i] = v
	}
	return out
}

// Swap validates and installs a tuner-proposed set. Pinned fields keep
// their current value; the remainder of the proposal still applies.
func (s *ThresholdStore) Swap(proposed domain.ThresholdSet) (domain.ThresholdSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.mergePinnedLocked(proposed)
	if err := merged.Validate(); err != nil {
		return s.current.Set, err
	}
	s.installLocked(merged, thresholdSourceTuner)
	return merged, nil
}

// Override installs an operator-supplied set and pins the fields that
// changed so subsequent tuner runs leave them alone.
func (s *ThresholdStore) Override(proposed domain.ThresholdSet) error {
	if err := proposed.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current.Set
	if proposed.ComplexitySimple != prev.ComplexitySimple {
		s.pinned[FieldComplexitySimple] = true
	}
	if proposed.ComplexityComplex != prev.ComplexityComplex {
		s.pinned[FieldComplexityComplex] = true
	}
	if proposed.ConfidenceHigh != prev.ConfidenceHigh {
		s.pinned[FieldConfidenceHigh] = true
	}
	if proposed.ConfidenceLow != prev.ConfidenceLow {
		s.pinned[FieldConfidenceLow] = true
	}
	s.installLocked(proposed, thresholdSourceOperator)
	return nil
}

// RollbackToPrevious restores the set that was live before the most recent
// change. It is a no-op at version 1.
func (s *ThresholdStore) RollbackToPrevious() (domain.ThresholdSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) < 2 {
		return s.current.Set, false
	}
	prev := s.history[len(s.history)-2].Set
	s.installLocked(prev, thresholdSourceRollback)
	return prev, true
}

// Pinned reports the fields operators have pinned.
func (s *ThresholdStore) Pinned() []ThresholdField {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ThresholdField, 0, len(s.pinned))
	for _, f := range []ThresholdField{FieldComplexitySimple, FieldComplexityComplex, FieldConfidenceHigh, FieldConfidenceLow} {
		if s.pinned[f] {
			out = append(out, f)
		}
	}
	return out
}

// ClearPins releases all operator pins, returning fields to tuner control.
func (s *ThresholdStore) ClearPins() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = make(map[ThresholdField]bool)
}

func (s *ThresholdStore) mergePinnedLocked(proposed domain.ThresholdSet) domain.ThresholdSet {
	cur := s.current.Set
	if s.pinned[FieldComplexitySimple] {
		proposed.ComplexitySimple = cur.ComplexitySimple
	}
	if s.pinned[FieldComplexityComplex] {
		proposed.ComplexityComplex = cur.ComplexityComplex
	}
	if s.pinned[FieldConfidenceHigh] {
		proposed.ConfidenceHigh = cur.ConfidenceHigh
	}
	if s.pinned[FieldConfidenceLow] {
		proposed.ConfidenceLow = cur.ConfidenceLow
	}
	return proposed
}

func (s *ThresholdStore) installLocked(set domain.ThresholdSet, source string) {
	next := ThresholdVersion{
		Version:   s.current.Version + 1,
		Set:       set,
		Source:    source,
		AppliedAt: s.now(),
	}
	s.current = next
	s.history = append(s.history, next)
	if len(s.history) > thresholdHistoryLimit {
		s.history = s.history[len(s.history)-thresholdHistoryLimit:]
	}
}
