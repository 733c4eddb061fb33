package usecase

import (
	"testing"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

func goodPassages() []domain.RetrievedPassage {
	return []domain.RetrievedPassage{
		{ID: "p1", Score: 0.93},
		{ID: "p2", Score: 0.90},
		{ID: "p3", Score: 0.88},
		{ID: "p4", Score: 0.85},
		{ID: "p5", Score: 0.84},
	}
}

func TestScoreGoodPassagesIsHigh(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultConfidenceWeights())

	score := scorer.Score(goodPassages(), false, nil)
	if score < 0.8 {
		t.Fatalf("expected confidence >= 0.8 for strong passages, got %v", score)
	}
	if score > 1 {
		t.Fatalf("confidence must be clamped to [0,1], got %v", score)
	}
}

func TestScoreEmptyPassagesIsLow(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultConfidenceWeights())

	score := scorer.Score(nil, false, nil)
	if score > 0.2 {
		t.Fatalf("expected confidence <= 0.2 for empty retrieval, got %v", score)
	}
}

func TestScoreCacheHitBiasesUpward(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultConfidenceWeights())
	passages := []domain.RetrievedPassage{{ID: "p1", Score: 0.6}}

	miss := scorer.Score(passages, false, nil)
	hit := scorer.Score(passages, true, nil)
	if hit <= miss {
		t.Fatalf("expected cache hit to raise confidence: hit=%v miss=%v", hit, miss)
	}
}

func TestScoreUsesHistoricalRateWhenAvailable(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultConfidenceWeights())
	passages := []domain.RetrievedPassage{{ID: "p1", Score: 0.5}}

	weak := 0.1
	strong := 0.95
	low := scorer.Score(passages, false, &weak)
	high := scorer.Score(passages, false, &strong)
	if high <= low {
		t.Fatalf("expected stronger history to raise confidence: high=%v low=%v", high, low)
	}
}

func TestZeroWeightsFallBackToDefaults(t *testing.T) {
	scorer := NewConfidenceScorer(ConfidenceWeights{})

	score := scorer.Score(goodPassages(), false, nil)
	if score == 0 {
		t.Fatalf("expected default weights to apply, got zero score")
	}
}
