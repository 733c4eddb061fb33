package usecase

import (
	"strings"
	"unicode"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// lengthSaturationChars is the query length at which the normalized length
// feature reaches 1.0.
const lengthSaturationChars = 300

var multiHopMarkers = []string{
	"compare", "versus", " vs ", "difference between", "relationship between",
	"impact of", "effect of", "cause of", "trade-off", "tradeoff",
	"how does", "why does", "depends on", "and then", "as well as", "both",
}

var listCues = []string{
	"list", "enumerate", "top ", "steps", "examples", "all the",
	"which of", "name the", "what are",
}

// ComplexityClassifier scores query complexity from static lexical features.
// Pure and deterministic: identical input always yields the same score.
type ComplexityClassifier struct {
	lengthWeight  float64
	markerWeight  float64
	listWeight    float64
	contextWeight float64
}

func NewComplexityClassifier() *ComplexityClassifier {
	return &ComplexityClassifier{
		lengthWeight:  0.35,
		markerWeight:  0.35,
		listWeight:    0.20,
		contextWeight: 0.10,
	}
}

// Classify never fails: malformed input yields the minimum score with a
// zeroed feature vector.
func (c *ComplexityClassifier) Classify(query domain.Query) domain.ComplexityScore {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return domain.ComplexityScore{}
	}

	lowered := strings.ToLower(text)
	features := domain.ComplexityFeatures{
		NormalizedLength: clamp01(float64(len(text)) / lengthSaturationChars),
		MultiHopMarkers:  countMarkers(lowered, multiHopMarkers),
		ListCues:         countMarkers(lowered, listCues),
		ContextDepth:     len(query.Context),
	}

	value := c.lengthWeight*features.NormalizedLength +
		c.markerWeight*clamp01(float64(features.MultiHopMarkers)/3.0) +
		c.listWeight*clamp01(float64(features.ListCues)/2.0) +
		c.contextWeight*clamp01(float64(features.ContextDepth)/6.0)

	return domain.ComplexityScore{
		Value:    clamp01(value),
		Features: features,
	}
}

// MapToMode maps a complexity score onto a mode using the live thresholds.
// An explicit override on the query wins and skips classification entirely;
// callers check that before scoring.
func MapToMode(score domain.ComplexityScore, thresholds domain.ThresholdSet) domain.Mode {
	switch {
	case score.Value < thresholds.ComplexitySimple:
		return domain.ModeFast
	case score.Value <= thresholds.ComplexityComplex:
		return domain.ModeBalanced
	default:
		return domain.ModeDeep
	}
}

func countMarkers(lowered string, markers []string) int {
	count := 0
	for _, marker := range markers {
		count += strings.Count(lowered, marker)
	}
	return count
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// wordCount is shared by the fusion perspective sizing.
func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
