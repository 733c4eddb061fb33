package usecase

import (
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// ConfidenceWeights expose the scoring heuristic as configuration rather
// than a hard-coded combination.
type ConfidenceWeights struct {
	Similarity   float64
	PassageCount float64
	CacheHit     float64
	History      float64
}

func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Similarity:   0.5,
		PassageCount: 0.25,
		CacheHit:     0.15,
		History:      0.1,
	}
}

// ConfidenceScorer turns a speculative attempt into a [0,1] confidence.
type ConfidenceScorer struct {
	weights ConfidenceWeights
	// saturationCount is the passage count at which the count signal
	// reaches 1.0.
	saturationCount int
}

func NewConfidenceScorer(weights ConfidenceWeights) *ConfidenceScorer {
	if weights == (ConfidenceWeights{}) {
		weights = DefaultConfidenceWeights()
	}
	return &ConfidenceScorer{weights: weights, saturationCount: 5}
}

// Score blends best/mean passage similarity, passage count, a cache-hit
// bias, and an optional historical success rate for similar queries.
// Signals that are unavailable fall back to the similarity signal so their
// absence does not drag the score down; an empty passage set drives the
// score to the low end.
func (s *ConfidenceScorer) Score(passages []domain.RetrievedPassage, cacheHit bool, historicalRate *float64) float64 {
	similarity := similaritySignal(passages)

	countSignal := clamp01(float64(len(passages)) / float64(s.saturationCount))

	cacheSignal := similarity
	if cacheHit {
		cacheSignal = 1
	}

	historySignal := similarity
	if historicalRate != nil {
		historySignal = clamp01(*historicalRate)
	}

	score := s.weights.Similarity*similarity +
		s.weights.PassageCount*countSignal +
		s.weights.CacheHit*cacheSignal +
		s.weights.History*historySignal

	return clamp01(score)
}

func similaritySignal(passages []domain.RetrievedPassage) float64 {
	if len(passages) == 0 {
		return 0
	}
	best := passages[0].Score
	sum := 0.0
	for _, p := range passages {
		if p.Score > best {
			best = p.Score
		}
		sum += p.Score
	}
	mean := sum / float64(len(passages))
	return clamp01(0.5*clamp01(best) + 0.5*clamp01(mean))
}
