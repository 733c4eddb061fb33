package domain

import "time"

// ComplexityFeatures is the feature vector behind a complexity score.
type ComplexityFeatures struct {
	NormalizedLength float64 `json:"normalized_length"`
	MultiHopMarkers  int     `json:"multi_hop_markers"`
	ListCues         int     `json:"list_cues"`
	ContextDepth     int     `json:"context_depth"`
}

// ComplexityScore is a derived, never-persisted classification of one query.
type ComplexityScore struct {
	Value    float64            `json:"value"`
	Features ComplexityFeatures `json:"features"`
}

// Decision is the outcome of comparing speculative confidence to thresholds.
type Decision string

const (
	DecisionAccept   Decision = "accept"
	DecisionEscalate Decision = "escalate"
)

// PipelineState tracks a query through the routing state machine.
// States advance strictly forward; none is revisited.
type PipelineState string

const (
	StateSpeculated PipelineState = "speculated"
	StateAccepted   PipelineState = "accepted"
	StateEscalated  PipelineState = "escalated"
	StateFused      PipelineState = "fused"
	StateDone       PipelineState = "done"
)

// RoutingOutcome is the append-only record of one completed query.
type RoutingOutcome struct {
	ID              string     `json:"id"`
	Mode            Mode       `json:"mode"`
	ComplexityScore float64    `json:"complexity_score"`
	Confidence      float64    `json:"confidence"`
	Escalated       bool       `json:"escalated"`
	Ambiguous       bool       `json:"ambiguous"`
	CacheHit        bool       `json:"cache_hit"`
	LatencyMS       int64      `json:"latency_ms"`
	UserFeedback    *float64   `json:"user_feedback,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ThresholdSet holds the live routing cut points.
// Mutated only through an atomic swap that retains the previous set.
type ThresholdSet struct {
	ComplexitySimple  float64 `json:"complexity_simple"`
	ComplexityComplex float64 `json:"complexity_complex"`
	ConfidenceHigh    float64 `json:"confidence_high"`
	ConfidenceLow     float64 `json:"confidence_low"`
}

// DefaultThresholds returns the shipping cut points used before any
// operator override or tuning pass.
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		ComplexitySimple:  0.3,
		ComplexityComplex: 0.7,
		ConfidenceHigh:    0.75,
		ConfidenceLow:     0.4,
	}
}

// Validate enforces the ordering invariants every applied set must satisfy.
func (t ThresholdSet) Validate() error {
	if t.ComplexitySimple <= 0 || t.ComplexitySimple >= 1 ||
		t.ComplexityComplex <= 0 || t.ComplexityComplex >= 1 ||
		t.ConfidenceHigh <= 0 || t.ConfidenceHigh >= 1 ||
		t.ConfidenceLow <= 0 || t.ConfidenceLow >= 1 {
		return WrapError(ErrTuningValidation, "threshold validate", errThresholdRange)
	}
	if t.ComplexitySimple >= t.ComplexityComplex {
		return WrapError(ErrTuningValidation, "threshold validate", errComplexityOrder)
	}
	if t.ConfidenceLow >= t.ConfidenceHigh {
		return WrapError(ErrTuningValidation, "threshold validate", errConfidenceOrder)
	}
	return nil
}

// ModeShare is the observed or targeted fraction per mode.
type ModeShare struct {
	Fast     float64 `json:"fast"`
	Balanced float64 `json:"balanced"`
	Deep     float64 `json:"deep"`
}

// ModeStats aggregates outcomes for one mode over an analysis window.
type ModeStats struct {
	Count          int     `json:"count"`
	MeanLatencyMS  float64 `json:"mean_latency_ms"`
	MeanConfidence float64 `json:"mean_confidence"`
	MeanFeedback   float64 `json:"mean_feedback"`
	FeedbackCount  int     `json:"feedback_count"`
}

// PerformanceAnalysis summarizes a trailing outcome window.
type PerformanceAnalysis struct {
	WindowStart    time.Time          `json:"window_start"`
	WindowEnd      time.Time          `json:"window_end"`
	SampleCount    int                `json:"sample_count"`
	Distribution   ModeShare          `json:"distribution"`
	EscalationRate float64            `json:"escalation_rate"`
	PerMode        map[Mode]ModeStats `json:"per_mode"`
}

// ThresholdRecommendation is a proposed adjustment plus the tuner's own
// confidence in it.
type ThresholdRecommendation struct {
	Current    ThresholdSet `json:"current"`
	Proposed   ThresholdSet `json:"proposed"`
	Confidence float64      `json:"confidence"`
	Reasons    []string     `json:"reasons,omitempty"`
}

// TuningResult is the audit record of one apply attempt.
type TuningResult struct {
	ID         string       `json:"id"`
	Applied    bool         `json:"applied"`
	DryRun     bool         `json:"dry_run"`
	RolledBack bool         `json:"rolled_back"`
	Previous   ThresholdSet `json:"previous"`
	Resulting  ThresholdSet `json:"resulting"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
