package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

// Tuned thresholds never leave this band regardless of how skewed the
// observed distribution is, so a pathological window cannot wedge the
// router into a single mode.
const (
	thresholdFloor = 0.05
	thresholdCeil  = 0.95
)

// Escalation-rate band used to steer confidence_high. Above the ceiling
// the router is escalating too eagerly; below the floor with poor feedback
// it is accepting answers it should not.
const (
	escalationRateCeil  = 0.35
	escalationRateFloor = 0.05
)

// minFeedbackSamples gates feedback-driven adjustments; below this the
// feedback mean is too noisy to act on.
const minFeedbackSamples = 10

// minApplyConfidence is the recommendation confidence below which the
// tuner records but does not apply a proposal.
const minApplyConfidence = 0.3

const poorFeedbackMean = 0.5

// TargetShares are the operator-set distribution bands per mode.
type TargetShares struct {
	FastMin, FastMax         float64
	BalancedMin, BalancedMax float64
	DeepMin, DeepMax         float64
}

// TunerConfig bounds one tuner instance.
type TunerConfig struct {
	Window           time.Duration
	MinSamples       int
	Step             float64
	RegressionMargin float64
	Targets          TargetShares
}

func (c *TunerConfig) applyDefaults() {
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 100
	}
	if c.Step <= 0 {
		c.Step = 0.02
	}
	if c.RegressionMargin <= 0 {
		c.RegressionMargin = 0.15
	}
	if c.Targets == (TargetShares{}) {
		c.Targets = TargetShares{
			FastMin: 0.40, FastMax: 0.50,
			BalancedMin: 0.30, BalancedMax: 0.40,
			DeepMin: 0.20, DeepMax: 0.30,
		}
	}
}

// ThresholdTuner closes the feedback loop: it analyzes the trailing
// outcome window, nudges thresholds toward the target mode distribution,
// and rolls an applied change back when quality regresses afterwards.
type ThresholdTuner struct {
	outcomes   ports.OutcomeStore
	audit      ports.TuningAuditStore
	queue      ports.OutcomeQueue
	thresholds *ThresholdStore
	cfg        TunerConfig
	now        func() time.Time

	mu           sync.Mutex
	lastAnalysis *domain.PerformanceAnalysis
	// baselineQuality is the window quality measured when the last change
	// was applied; nil when no applied change is pending verification.
	baselineQuality *float64
}

func NewThresholdTuner(
	outcomes ports.OutcomeStore,
	audit ports.TuningAuditStore,
	queue ports.OutcomeQueue,
	thresholds *ThresholdStore,
	cfg TunerConfig,
) *ThresholdTuner {
	cfg.applyDefaults()
	return &ThresholdTuner{
		outcomes:   outcomes,
		audit:      audit,
		queue:      queue,
		thresholds: thresholds,
		cfg:        cfg,
		now:        time.Now,
	}
}

var _ ports.TuningService = (*ThresholdTuner)(nil)

// AnalyzePerformance aggregates the trailing window into per-mode stats
// and the observed mode distribution. Fails with ErrInsufficientData when
// the window holds fewer than MinSamples outcomes.
func (t *ThresholdTuner) AnalyzePerformance(ctx context.Context) (*domain.PerformanceAnalysis, error) {
	end := t.now().UTC()
	start := end.Add(-t.cfg.Window)

	window, err := t.outcomes.ListSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("tuner analyze: %w", err)
	}
	if len(window) < t.cfg.MinSamples {
		return nil, domain.WrapError(domain.ErrInsufficientData, "tuner analyze",
			fmt.Errorf("%d outcomes in window, need %d", len(window), t.cfg.MinSamples))
	}

	perMode := map[domain.Mode]domain.ModeStats{}
	for _, mode := range []domain.Mode{domain.ModeFast, domain.ModeBalanced, domain.ModeDeep} {
		perMode[mode] = domain.ModeStats{}
	}

	var escalated int
	for _, outcome := range window {
		stats := perMode[outcome.Mode]
		stats.Count++
		stats.MeanLatencyMS += float64(outcome.LatencyMS)
		stats.MeanConfidence += outcome.Confidence
		if outcome.UserFeedback != nil {
			stats.MeanFeedback += *outcome.UserFeedback
			stats.FeedbackCount++
		}
		perMode[outcome.Mode] = stats
		if outcome.Escalated {
			escalated++
		}
	}
	for mode, stats := range perMode {
		if stats.Count > 0 {
			stats.MeanLatencyMS /= float64(stats.Count)
			stats.MeanConfidence /= float64(stats.Count)
		}
		if stats.FeedbackCount > 0 {
			stats.MeanFeedback /= float64(stats.FeedbackCount)
		}
		perMode[mode] = stats
	}

	total := float64(len(window))
	analysis := &domain.PerformanceAnalysis{
		WindowStart: start,
		WindowEnd:   end,
		SampleCount: len(window),
		Distribution: domain.ModeShare{
			Fast:     float64(perMode[domain.ModeFast].Count) / total,
			Balanced: float64(perMode[domain.ModeBalanced].Count) / total,
			Deep:     float64(perMode[domain.ModeDeep].Count) / total,
		},
		EscalationRate: float64(escalated) / total,
		PerMode:        perMode,
	}

	t.mu.Lock()
	t.lastAnalysis = analysis
	t.mu.Unlock()
	return analysis, nil
}

// LastAnalysis returns the most recent analysis, nil before the first run.
func (t *ThresholdTuner) LastAnalysis() *domain.PerformanceAnalysis {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAnalysis
}

// RecommendThresholds proposes one bounded step per out-of-band signal.
// Pinned fields are left untouched; every adjustment carries a reason.
func (t *ThresholdTuner) RecommendThresholds(ctx context.Context, analysis *domain.PerformanceAnalysis) (*domain.ThresholdRecommendation, error) {
	current := t.thresholds.Current()
	proposed := current
	pinned := map[ThresholdField]bool{}
	for _, f := range t.thresholds.Pinned() {
		pinned[f] = true
	}
	var reasons []string

	dist := analysis.Distribution
	targets := t.cfg.Targets
	step := t.cfg.Step

	if !pinned[FieldComplexitySimple] {
		switch {
		case dist.Fast > targets.FastMax:
			proposed.ComplexitySimple = boundedStep(current.ComplexitySimple, -step)
			reasons = append(reasons, fmt.Sprintf("fast share %.2f above target %.2f, tightening complexity_simple", dist.Fast, targets.FastMax))
		case dist.Fast < targets.FastMin:
			proposed.ComplexitySimple = boundedStep(current.ComplexitySimple, +step)
			reasons = append(reasons, fmt.Sprintf("fast share %.2f below target %.2f, loosening complexity_simple", dist.Fast, targets.FastMin))
		}
	}

	if !pinned[FieldComplexityComplex] {
		switch {
		case dist.Deep > targets.DeepMax:
			proposed.ComplexityComplex = boundedStep(current.ComplexityComplex, +step)
			reasons = append(reasons, fmt.Sprintf("deep share %.2f above target %.2f, tightening complexity_complex", dist.Deep, targets.DeepMax))
		case dist.Deep < targets.DeepMin:
			proposed.ComplexityComplex = boundedStep(current.ComplexityComplex, -step)
			reasons = append(reasons, fmt.Sprintf("deep share %.2f below target %.2f, loosening complexity_complex", dist.Deep, targets.DeepMin))
		}
	}

	rate := analysis.EscalationRate
	if !pinned[FieldConfidenceHigh] {
		switch {
		case rate > escalationRateCeil:
			proposed.ConfidenceHigh = boundedStep(current.ConfidenceHigh, -step)
			reasons = append(reasons, fmt.Sprintf("escalation rate %.2f above %.2f, lowering confidence_high", rate, escalationRateCeil))
		case rate < escalationRateFloor && feedbackSuggestsStricter(analysis):
			proposed.ConfidenceHigh = boundedStep(current.ConfidenceHigh, +step)
			reasons = append(reasons, fmt.Sprintf("escalation rate %.2f with poor feedback, raising confidence_high", rate))
		}
	}

	confidence := recommendationConfidence(analysis, t.cfg, len(reasons))
	return &domain.ThresholdRecommendation{
		Current:    current,
		Proposed:   proposed,
		Confidence: confidence,
		Reasons:    reasons,
	}, nil
}

// ApplyThresholds records every attempt and swaps the live set only when
// the recommendation is confident, changes something, and validates.
// A rejected proposal is an audit entry, not an error.
func (t *ThresholdTuner) ApplyThresholds(ctx context.Context, rec *domain.ThresholdRecommendation, dryRun bool) (*domain.TuningResult, error) {
	result := &domain.TuningResult{
		ID:        uuid.NewString(),
		DryRun:    dryRun,
		Previous:  rec.Current,
		Resulting: rec.Current,
		CreatedAt: t.now().UTC(),
	}

	switch {
	case rec.Proposed == rec.Current:
		result.Reason = "no adjustment needed"
	case dryRun:
		result.Resulting = rec.Proposed
		result.Reason = joinReasons(rec.Reasons)
	case rec.Confidence < minApplyConfidence:
		result.Reason = fmt.Sprintf("recommendation confidence %.2f below apply floor %.2f", rec.Confidence, minApplyConfidence)
	default:
		applied, err := t.thresholds.Swap(rec.Proposed)
		if err != nil {
			result.Reason = fmt.Sprintf("proposal rejected: %v", err)
		} else {
			result.Applied = true
			result.Resulting = applied
			result.Reason = joinReasons(rec.Reasons)
			t.markBaseline()
		}
	}

	if err := t.audit.SaveTuningResult(ctx, *result); err != nil {
		slog.Warn("tuning_audit_save_failed", "tuning_id", result.ID, "error", err)
	}
	return result, nil
}

// RunOnce is one full tuning cycle: verify the previous change did not
// regress quality, then analyze, recommend, and apply.
func (t *ThresholdTuner) RunOnce(ctx context.Context, dryRun bool) (*domain.TuningResult, error) {
	analysis, err := t.AnalyzePerformance(ctx)
	if err != nil {
		return nil, err
	}

	if result := t.rollbackIfRegressed(ctx, analysis); result != nil {
		return result, nil
	}

	rec, err := t.RecommendThresholds(ctx, analysis)
	if err != nil {
		return nil, err
	}
	return t.ApplyThresholds(ctx, rec, dryRun)
}

// rollbackIfRegressed compares current window quality against the quality
// recorded when the last change was applied. A drop beyond the regression
// margin restores the previous set and notifies operators.
func (t *ThresholdTuner) rollbackIfRegressed(ctx context.Context, analysis *domain.PerformanceAnalysis) *domain.TuningResult {
	t.mu.Lock()
	baseline := t.baselineQuality
	t.mu.Unlock()
	if baseline == nil {
		return nil
	}

	quality := analysisQuality(analysis)
	if quality >= *baseline*(1-t.cfg.RegressionMargin) {
		// Change held up; stop watching it.
		t.mu.Lock()
		t.baselineQuality = nil
		t.mu.Unlock()
		return nil
	}

	before := t.thresholds.Current()
	restored, ok := t.thresholds.RollbackToPrevious()
	t.mu.Lock()
	t.baselineQuality = nil
	t.mu.Unlock()
	if !ok {
		return nil
	}

	detail := fmt.Sprintf("quality %.3f fell below baseline %.3f, thresholds rolled back", quality, *baseline)
	if err := t.queue.PublishAdminNotice(ctx, "threshold-rollback", detail); err != nil {
		slog.Warn("tuning_admin_notice_failed", "error", err)
	}

	result := &domain.TuningResult{
		ID:         uuid.NewString(),
		Applied:    true,
		RolledBack: true,
		Previous:   before,
		Resulting:  restored,
		Reason:     detail,
		CreatedAt:  t.now().UTC(),
	}
	if err := t.audit.SaveTuningResult(ctx, *result); err != nil {
		slog.Warn("tuning_audit_save_failed", "tuning_id", result.ID, "error", err)
	}
	return result
}

func (t *ThresholdTuner) markBaseline() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastAnalysis != nil {
		q := analysisQuality(t.lastAnalysis)
		t.baselineQuality = &q
	}
}

func boundedStep(value, delta float64) float64 {
	value += delta
	if value < thresholdFloor {
		return thresholdFloor
	}
	if value > thresholdCeil {
		return thresholdCeil
	}
	return value
}

// feedbackSuggestsStricter reports whether accepted answers are rating
// poorly enough to justify escalating more often.
func feedbackSuggestsStricter(analysis *domain.PerformanceAnalysis) bool {
	var sum float64
	var count int
	for _, stats := range analysis.PerMode {
		sum += stats.MeanFeedback * float64(stats.FeedbackCount)
		count += stats.FeedbackCount
	}
	if count < minFeedbackSamples {
		return false
	}
	return sum/float64(count) < poorFeedbackMean
}

// imbalanceSaturation is the band-edge distance at which the imbalance
// signal maxes out; a share 15 points outside its target band is treated
// as fully imbalanced.
const imbalanceSaturation = 0.15

// recommendationConfidence scales with window depth and with how far the
// observed distribution sits outside its target bands: a deep window with
// a barely-out-of-band share yields a low-confidence recommendation that
// the apply floor keeps as a dry proposal.
func recommendationConfidence(analysis *domain.PerformanceAnalysis, cfg TunerConfig, adjustments int) float64 {
	if adjustments == 0 {
		return 0
	}
	depth := float64(analysis.SampleCount) / float64(4*cfg.MinSamples)
	if depth > 1 {
		depth = 1
	}
	if depth < 0.25 {
		depth = 0.25
	}

	imbalance := clamp01(maxBandViolation(analysis, cfg.Targets) / imbalanceSaturation)
	return clamp01(depth * imbalance)
}

// maxBandViolation returns the largest distance by which any observed
// signal sits outside its target band.
func maxBandViolation(analysis *domain.PerformanceAnalysis, targets TargetShares) float64 {
	violation := bandDistance(analysis.Distribution.Fast, targets.FastMin, targets.FastMax)
	if d := bandDistance(analysis.Distribution.Balanced, targets.BalancedMin, targets.BalancedMax); d > violation {
		violation = d
	}
	if d := bandDistance(analysis.Distribution.Deep, targets.DeepMin, targets.DeepMax); d > violation {
		violation = d
	}
	if d := bandDistance(analysis.EscalationRate, escalationRateFloor, escalationRateCeil); d > violation {
		violation = d
	}
	return violation
}

func bandDistance(value, min, max float64) float64 {
	switch {
	case value > max:
		return value - max
	case value < min:
		return min - value
	default:
		return 0
	}
}

// analysisQuality is the scalar the regression check compares: mean user
// feedback when enough of it exists, mean confidence otherwise.
func analysisQuality(analysis *domain.PerformanceAnalysis) float64 {
	var fbSum float64
	var fbCount int
	var confSum float64
	var confCount int
	for _, stats := range analysis.PerMode {
		fbSum += stats.MeanFeedback * float64(stats.FeedbackCount)
		fbCount += stats.FeedbackCount
		confSum += stats.MeanConfidence * float64(stats.Count)
		confCount += stats.Count
	}
	if fbCount >= minFeedbackSamples {
		return fbSum / float64(fbCount)
	}
	if confCount == 0 {
		return 0
	}
	return confSum / float64(confCount)
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
