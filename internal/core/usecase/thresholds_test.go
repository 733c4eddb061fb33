package usecase

import (
	"errors"
	"testing"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

func validThresholds() domain.ThresholdSet {
	return domain.ThresholdSet{
		ComplexitySimple:  0.3,
		ComplexityComplex: 0.7,
		ConfidenceHigh:    0.75,
		ConfidenceLow:     0.4,
	}
}

func TestNewThresholdStoreRejectsInvalidInitial(t *testing.T) {
	bad := validThresholds()
	bad.ConfidenceLow = 0.9
	if _, err := NewThresholdStore(bad); !errors.Is(err, domain.ErrTuningValidation) {
		t.Fatalf("expected ErrTuningValidation, got %v", err)
	}
}

func TestThresholdStoreSwapRecordsHistory(t *testing.T) {
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}

	next := validThresholds()
	next.ComplexitySimple = 0.32
	applied, err := store.Swap(next)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if applied.ComplexitySimple != 0.32 {
		t.Fatalf("expected proposed value applied, got %f", applied.ComplexitySimple)
	}
	if got := store.Current(); got != next {
		t.Fatalf("Current=%+v, want %+v", got, next)
	}

	history := store.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Version != 2 || history[0].Source != thresholdSourceTuner {
		t.Fatalf("unexpected newest entry: %+v", history[0])
	}
	if history[1].Version != 1 || history[1].Source != thresholdSourceInitial {
		t.Fatalf("unexpected oldest entry: %+v", history[1])
	}
}

func TestThresholdStoreSwapRejectsInvalidAndKeepsCurrent(t *testing.T) {
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}

	bad := validThresholds()
	bad.ComplexitySimple = 0.8 // above complexity_complex
	if _, err := store.Swap(bad); !errors.Is(err, domain.ErrTuningValidation) {
		t.Fatalf("expected ErrTuningValidation, got %v", err)
	}
	if got := store.Current(); got != validThresholds() {
		t.Fatalf("current set changed after rejected swap: %+v", got)
	}
	if len(store.History()) != 1 {
		t.Fatalf("rejected swap must not append history")
	}
}

func TestThresholdStoreOverridePinsChangedFields(t *testing.T) {
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}

	override := validThresholds()
	override.ConfidenceHigh = 0.85
	if err := store.Override(override); err != nil {
		t.Fatalf("Override: %v", err)
	}

	pinned := store.Pinned()
	if len(pinned) != 1 || pinned[0] != FieldConfidenceHigh {
		t.Fatalf("expected confidence_high pinned, got %v", pinned)
	}

	// A tuner swap must keep the pinned field while applying the rest.
	proposal := validThresholds()
	proposal.ConfidenceHigh = 0.7
	proposal.ComplexitySimple = 0.28
	applied, err := store.Swap(proposal)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if applied.ConfidenceHigh != 0.85 {
		t.Fatalf("pinned field overridden by tuner: %f", applied.ConfidenceHigh)
	}
	if applied.ComplexitySimple != 0.28 {
		t.Fatalf("unpinned field not applied: %f", applied.ComplexitySimple)
	}
}

func TestThresholdStoreClearPins(t *testing.T) {
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}
	override := validThresholds()
	override.ConfidenceLow = 0.35
	if err := store.Override(override); err != nil {
		t.Fatalf("Override: %v", err)
	}
	if len(store.Pinned()) == 0 {
		t.Fatalf("expected a pin after override")
	}

	store.ClearPins()
	if len(store.Pinned()) != 0 {
		t.Fatalf("expected no pins after ClearPins, got %v", store.Pinned())
	}

	proposal := validThresholds()
	proposal.ConfidenceLow = 0.42
	applied, err := store.Swap(proposal)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if applied.ConfidenceLow != 0.42 {
		t.Fatalf("cleared pin still blocking tuner: %f", applied.ConfidenceLow)
	}
}

func TestThresholdStoreRollbackToPrevious(t *testing.T) {
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}

	if _, ok := store.RollbackToPrevious(); ok {
		t.Fatalf("rollback at version 1 must be a no-op")
	}

	next := validThresholds()
	next.ComplexityComplex = 0.72
	if _, err := store.Swap(next); err != nil {
		t.Fatalf("Swap: %v", err)
	}

	restored, ok := store.RollbackToPrevious()
	if !ok {
		t.Fatalf("expected rollback to succeed")
	}
	if restored != validThresholds() {
		t.Fatalf("restored=%+v, want initial set", restored)
	}
	if got := store.Current(); got != validThresholds() {
		t.Fatalf("current after rollback=%+v", got)
	}

	history := store.History()
	if history[0].Source != thresholdSourceRollback || history[0].Version != 3 {
		t.Fatalf("rollback must append a new version, got %+v", history[0])
	}
}

func TestThresholdStoreHistoryBounded(t *testing.T) {
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}
	set := validThresholds()
	for i := 0; i < thresholdHistoryLimit+10; i++ {
		if set.ComplexitySimple == 0.3 {
			set.ComplexitySimple = 0.31
		} else {
			set.ComplexitySimple = 0.3
		}
		if _, err := store.Swap(set); err != nil {
			t.Fatalf("Swap %d: %v", i, err)
		}
	}
	if got := len(store.History()); got != thresholdHistoryLimit {
		t.Fatalf("history length=%d, want %d", got, thresholdHistoryLimit)
	}
}
