package usecase

import (
	"math"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// MMRDiversifier re-ranks a pre-bounded candidate set with Maximal
// Marginal Relevance: lambda trades relevance to the query (1.0) against
// redundancy with already-selected passages (0.0).
type MMRDiversifier struct {
	lambda float64
}

func NewMMRDiversifier(lambda float64) *MMRDiversifier {
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}
	return &MMRDiversifier{lambda: lambda}
}

// Diversify greedily selects up to topK passages. Selection is
// O(topK × candidates) pairwise similarity evaluations, so candidates must
// be the fused result set rather than the full corpus. Without embeddings
// it degrades to plain relevance order.
func (d *MMRDiversifier) Diversify(queryVector []float32, candidates []domain.RetrievedPassage, topK int) []domain.RetrievedPassage {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	if !embeddingsAvailable(candidates) {
		return relevanceOrder(candidates, topK)
	}

	remaining := make([]domain.RetrievedPassage, len(candidates))
	copy(remaining, candidates)

	selected := make([]domain.RetrievedPassage, 0, topK)
	first := bestRelevanceIndex(queryVector, remaining)
	selected = append(selected, remaining[first])
	remaining = append(remaining[:first], remaining[first+1:]...)

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, candidate := range remaining {
			score := d.lambda*relevance(queryVector, candidate) -
				(1-d.lambda)*maxSimilarityToSelected(candidate, selected)
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func embeddingsAvailable(candidates []domain.RetrievedPassage) bool {
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			return false
		}
	}
	return true
}

func relevanceOrder(candidates []domain.RetrievedPassage, topK int) []domain.RetrievedPassage {
	out := make([]domain.RetrievedPassage, len(candidates))
	copy(out, candidates)
	// Candidates arrive ranked from fusion; keep that order.
	return out[:topK]
}

// relevance prefers cosine similarity to the query vector and falls back
// to the passage's retrieval score when the query vector is missing.
func relevance(queryVector []float32, p domain.RetrievedPassage) float64 {
	if len(queryVector) > 0 && len(p.Embedding) > 0 {
		return cosineSimilarity(queryVector, p.Embedding)
	}
	return clamp01(p.Score)
}

func bestRelevanceIndex(queryVector []float32, candidates []domain.RetrievedPassage) int {
	best := 0
	bestScore := math.Inf(-1)
	for i, c := range candidates {
		if score := relevance(queryVector, c); score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

func maxSimilarityToSelected(candidate domain.RetrievedPassage, selected []domain.RetrievedPassage) float64 {
	maxSim := 0.0
	for _, s := range selected {
		if sim := cosineSimilarity(candidate.Embedding, s.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return maxSim
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
