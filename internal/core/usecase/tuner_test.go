package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

type tunerFixture struct {
	outcomes   *outcomeStoreFake
	audit      *auditStoreFake
	queue      *queueFake
	thresholds *ThresholdStore
	tuner      *ThresholdTuner
}

func newTunerFixture(t *testing.T) *tunerFixture {
	t.Helper()
	outcomes := newOutcomeStoreFake()
	audit := &auditStoreFake{}
	queue := &queueFake{}
	store, err := NewThresholdStore(validThresholds())
	if err != nil {
		t.Fatalf("NewThresholdStore: %v", err)
	}
	tuner := NewThresholdTuner(outcomes, audit, queue, store, TunerConfig{
		Window:     time.Hour,
		MinSamples: 100,
		Step:       0.02,
	})
	return &tunerFixture{outcomes: outcomes, audit: audit, queue: queue, thresholds: store, tuner: tuner}
}

// windowOutcomes builds n outcomes split across modes by share.
func windowOutcomes(n int, fastShare, balancedShare float64, escalatedShare float64) []domain.RoutingOutcome {
	out := make([]domain.RoutingOutcome, 0, n)
	fastN := int(float64(n) * fastShare)
	balancedN := int(float64(n) * balancedShare)
	escalatedN := int(float64(n) * escalatedShare)
	for i := 0; i < n; i++ {
		o := domain.RoutingOutcome{
			Mode:       domain.ModeDeep,
			Confidence: 0.8,
			LatencyMS:  900,
			CreatedAt:  time.Now(),
		}
		switch {
		case i < fastN:
			o.Mode = domain.ModeFast
			o.LatencyMS = 200
		case i < fastN+balancedN:
			o.Mode = domain.ModeBalanced
			o.LatencyMS = 500
		}
		if i >= n-escalatedN {
			o.Escalated = true
		}
		out = append(out, o)
	}
	return out
}

func TestAnalyzePerformanceInsufficientData(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(50, 0.5, 0.3, 0)

	_, err := fx.tuner.AnalyzePerformance(context.Background())
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if fx.tuner.LastAnalysis() != nil {
		t.Fatalf("failed analysis must not be retained")
	}
}

func TestAnalyzePerformanceAggregates(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(200, 0.45, 0.35, 0.1)

	analysis, err := fx.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	if analysis.SampleCount != 200 {
		t.Fatalf("sample count=%d", analysis.SampleCount)
	}
	if analysis.Distribution.Fast != 0.45 {
		t.Fatalf("fast share=%f", analysis.Distribution.Fast)
	}
	if analysis.Distribution.Balanced != 0.35 {
		t.Fatalf("balanced share=%f", analysis.Distribution.Balanced)
	}
	if analysis.EscalationRate != 0.1 {
		t.Fatalf("escalation rate=%f", analysis.EscalationRate)
	}
	if analysis.PerMode[domain.ModeFast].MeanLatencyMS != 200 {
		t.Fatalf("fast mean latency=%f", analysis.PerMode[domain.ModeFast].MeanLatencyMS)
	}
	if fx.tuner.LastAnalysis() != analysis {
		t.Fatalf("LastAnalysis must return the newest analysis")
	}
}

func TestRecommendTightensComplexitySimpleWhenFastHeavy(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.70, 0.15, 0.1)

	analysis, err := fx.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	rec, err := fx.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}

	want := validThresholds().ComplexitySimple - 0.02
	if rec.Proposed.ComplexitySimple != want {
		t.Fatalf("complexity_simple=%f, want %f", rec.Proposed.ComplexitySimple, want)
	}
	if len(rec.Reasons) == 0 {
		t.Fatalf("adjustment must carry a reason")
	}
}

func TestRecommendLoosensComplexitySimpleWhenFastStarved(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.20, 0.55, 0.1)

	analysis, err := fx.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	rec, err := fx.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}

	want := validThresholds().ComplexitySimple + 0.02
	if rec.Proposed.ComplexitySimple != want {
		t.Fatalf("complexity_simple=%f, want %f", rec.Proposed.ComplexitySimple, want)
	}
}

func TestRecommendLowersConfidenceHighWhenEscalationExcessive(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.45, 0.35, 0.5)

	analysis, err := fx.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	rec, err := fx.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}

	want := validThresholds().ConfidenceHigh - 0.02
	if rec.Proposed.ConfidenceHigh != want {
		t.Fatalf("confidence_high=%f, want %f", rec.Proposed.ConfidenceHigh, want)
	}
}

func TestRecommendRespectsPinnedFields(t *testing.T) {
	fx := newTunerFixture(t)
	override := validThresholds()
	override.ComplexitySimple = 0.25
	if err := fx.thresholds.Override(override); err != nil {
		t.Fatalf("Override: %v", err)
	}

	fx.outcomes.window = windowOutcomes(400, 0.70, 0.15, 0.1)
	analysis, err := fx.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	rec, err := fx.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}

	if rec.Proposed.ComplexitySimple != 0.25 {
		t.Fatalf("pinned complexity_simple changed to %f", rec.Proposed.ComplexitySimple)
	}
}

func TestRecommendConfidenceScalesWithImbalance(t *testing.T) {
	// Both windows are equally deep; only the distance outside the target
	// bands differs. A barely-out-of-band share must not carry the same
	// confidence as a heavily skewed one.
	barely := newTunerFixture(t)
	barely.outcomes.window = windowOutcomes(400, 0.52, 0.30, 0.1)
	analysis, err := barely.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	barelyRec, err := barely.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}

	skewed := newTunerFixture(t)
	skewed.outcomes.window = windowOutcomes(400, 0.70, 0.15, 0.1)
	analysis, err = skewed.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	skewedRec, err := skewed.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}

	if barelyRec.Proposed == barelyRec.Current {
		t.Fatalf("out-of-band fast share must still propose a step")
	}
	if barelyRec.Confidence <= 0 {
		t.Fatalf("proposal with adjustments must carry some confidence")
	}
	if barelyRec.Confidence >= skewedRec.Confidence {
		t.Fatalf("mild imbalance confidence %.3f must sit below heavy imbalance %.3f",
			barelyRec.Confidence, skewedRec.Confidence)
	}
}

func TestRunOnceSkipsMildImbalanceDespiteDeepWindow(t *testing.T) {
	fx := newTunerFixture(t)
	// Fast share 0.52 against a 0.50 ceiling: a proposal exists, but the
	// signal is too weak to auto-apply even with a full window.
	fx.outcomes.window = windowOutcomes(400, 0.52, 0.30, 0.1)

	result, err := fx.tuner.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Applied {
		t.Fatalf("mild imbalance must not auto-apply: %+v", result)
	}
	if got := fx.thresholds.Current(); got != validThresholds() {
		t.Fatalf("live set changed on a skipped proposal: %+v", got)
	}
	if result.Reason == "" {
		t.Fatalf("skipped proposal must say why")
	}
}

func TestRecommendInBandProposesNoChange(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.45, 0.35, 0.1)

	analysis, err := fx.tuner.AnalyzePerformance(context.Background())
	if err != nil {
		t.Fatalf("AnalyzePerformance: %v", err)
	}
	rec, err := fx.tuner.RecommendThresholds(context.Background(), analysis)
	if err != nil {
		t.Fatalf("RecommendThresholds: %v", err)
	}
	if rec.Proposed != rec.Current {
		t.Fatalf("in-band distribution must not change thresholds: %+v", rec.Proposed)
	}
	if rec.Confidence != 0 {
		t.Fatalf("no-op recommendation confidence=%f, want 0", rec.Confidence)
	}
}

func TestApplyThresholdsDryRunDoesNotSwap(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.70, 0.15, 0.1)

	result, err := fx.tuner.RunOnce(context.Background(), true)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Applied || !result.DryRun {
		t.Fatalf("dry run must not apply: %+v", result)
	}
	if result.Resulting.ComplexitySimple == result.Previous.ComplexitySimple {
		t.Fatalf("dry run result must show the would-be set")
	}
	if got := fx.thresholds.Current(); got != validThresholds() {
		t.Fatalf("dry run changed the live set: %+v", got)
	}
	if len(fx.audit.results) != 1 {
		t.Fatalf("dry run must still be audited, got %d records", len(fx.audit.results))
	}
}

func TestRunOnceAppliesAndAudits(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.70, 0.15, 0.1)

	result, err := fx.tuner.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !result.Applied || result.DryRun || result.RolledBack {
		t.Fatalf("expected applied result, got %+v", result)
	}
	want := validThresholds().ComplexitySimple - 0.02
	if got := fx.thresholds.Current().ComplexitySimple; got != want {
		t.Fatalf("live complexity_simple=%f, want %f", got, want)
	}
	if len(fx.audit.results) != 1 || !fx.audit.results[0].Applied {
		t.Fatalf("apply must be audited: %+v", fx.audit.results)
	}
}

func TestRunOnceNoChangeIsAuditedNotApplied(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.window = windowOutcomes(400, 0.45, 0.35, 0.1)

	result, err := fx.tuner.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Applied {
		t.Fatalf("in-band window must not apply anything")
	}
	if result.Reason == "" {
		t.Fatalf("result must say why nothing was applied")
	}
}

func TestRunOnceRollsBackOnRegression(t *testing.T) {
	fx := newTunerFixture(t)

	// First cycle: fast-heavy window with strong confidence applies a change.
	goodWindow := windowOutcomes(400, 0.70, 0.15, 0.1)
	for i := range goodWindow {
		goodWindow[i].Confidence = 0.9
	}
	fx.outcomes.window = goodWindow
	first, err := fx.tuner.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if !first.Applied {
		t.Fatalf("expected first cycle to apply")
	}
	changed := fx.thresholds.Current()

	// Second cycle: quality collapses well past the regression margin.
	badWindow := windowOutcomes(400, 0.45, 0.35, 0.1)
	for i := range badWindow {
		badWindow[i].Confidence = 0.2
	}
	fx.outcomes.window = badWindow

	second, err := fx.tuner.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if !second.RolledBack {
		t.Fatalf("expected rollback, got %+v", second)
	}
	if got := fx.thresholds.Current(); got != validThresholds() {
		t.Fatalf("thresholds not restored: %+v (changed set was %+v)", got, changed)
	}

	fx.queue.mu.Lock()
	notices := len(fx.queue.notices)
	fx.queue.mu.Unlock()
	if notices != 1 {
		t.Fatalf("expected one admin notice, got %d", notices)
	}
}

func TestRunOnceRetainsChangeWhenQualityHolds(t *testing.T) {
	fx := newTunerFixture(t)

	window := windowOutcomes(400, 0.70, 0.15, 0.1)
	for i := range window {
		window[i].Confidence = 0.9
	}
	fx.outcomes.window = window
	if _, err := fx.tuner.RunOnce(context.Background(), false); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	changed := fx.thresholds.Current()

	// Quality stays put; the next cycle must keep the change.
	steady := windowOutcomes(400, 0.45, 0.35, 0.1)
	for i := range steady {
		steady[i].Confidence = 0.9
	}
	fx.outcomes.window = steady

	result, err := fx.tuner.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if result.RolledBack {
		t.Fatalf("steady quality must not roll back")
	}
	cur := fx.thresholds.Current()
	if cur.ComplexitySimple != changed.ComplexitySimple {
		t.Fatalf("applied change lost without a regression: %+v", cur)
	}
}

func TestRunOnceListErrorSurfaces(t *testing.T) {
	fx := newTunerFixture(t)
	fx.outcomes.listErr = errors.New("db down")

	if _, err := fx.tuner.RunOnce(context.Background(), false); err == nil {
		t.Fatalf("expected store error to surface")
	}
}
