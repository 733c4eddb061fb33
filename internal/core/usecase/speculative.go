package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

// minGenerationSlice is the floor of the time budget handed to generation
// after retrieval has consumed part of the mode timeout.
const minGenerationSlice = 250 * time.Millisecond

// snippetChars bounds each passage snippet in the degraded fallback answer.
const snippetChars = 240

// SpeculativeExecutor runs the cheap cache-first path for any mode. It
// never returns an error for ordinary provider failures: timeouts and
// backend errors degrade the result instead, so the caller always gets
// something back within the mode budget.
type SpeculativeExecutor struct {
	embedder    ports.Embedder
	retriever   ports.PassageRetriever
	generator   ports.TextGenerator
	cache       ports.ResponseCache
	scorer      *ConfidenceScorer
	temperature float64
}

func NewSpeculativeExecutor(
	embedder ports.Embedder,
	retriever ports.PassageRetriever,
	generator ports.TextGenerator,
	cache ports.ResponseCache,
	scorer *ConfidenceScorer,
	temperature float64,
) *SpeculativeExecutor {
	if temperature <= 0 {
		temperature = 0.3
	}
	return &SpeculativeExecutor{
		embedder:    embedder,
		retriever:   retriever,
		generator:   generator,
		cache:       cache,
		scorer:      scorer,
		temperature: temperature,
	}
}

func (e *SpeculativeExecutor) Execute(ctx context.Context, query domain.Query, mode domain.Mode, profile domain.ModeProfile) domain.SpeculativeResult {
	start := time.Now()
	key := responseCacheKey(cacheNamespaceSpeculative, mode, query.Text, query.Filter)

	if !query.BypassCache {
		if cached, ok := e.cache.Get(ctx, key); ok {
			var result domain.SpeculativeResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				// Cache hits keep the stored confidence; they are not re-scored.
				result.CacheHit = true
				result.Elapsed = time.Since(start)
				return result
			}
			slog.Warn("speculative_cache_entry_corrupt", "key", key)
		}
	}

	deadline := start.Add(profile.Timeout)
	passages := e.boundedRetrieve(ctx, query, profile, deadline)
	answer := e.boundedGenerate(ctx, query, passages, profile, deadline)

	result := domain.SpeculativeResult{
		Answer:     answer,
		Passages:   passages,
		Confidence: e.scorer.Score(passages, false, nil),
		CacheHit:   false,
		Elapsed:    time.Since(start),
	}

	payload, err := json.Marshal(result)
	if err == nil {
		e.cache.Set(ctx, key, string(payload), profile.CacheTTL)
	}
	return result
}

// boundedRetrieve embeds the query and searches within the mode timeout.
// A timeout or provider error yields zero passages, not a hard failure.
func (e *SpeculativeExecutor) boundedRetrieve(ctx context.Context, query domain.Query, profile domain.ModeProfile, deadline time.Time) []domain.RetrievedPassage {
	retrievalCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	queryVector, err := e.embedder.EmbedQuery(retrievalCtx, query.Text)
	if err != nil {
		slog.Warn("speculative_embed_degraded", "error", err)
		return nil
	}

	passages, err := e.retriever.Search(retrievalCtx, queryVector, profile.TopK, query.Filter)
	if err != nil {
		slog.Warn("speculative_retrieval_degraded", "error", err)
		return nil
	}
	return passages
}

// boundedGenerate spends whatever remains of the mode budget, with a
// minimum slice so retrieval overruns cannot starve generation entirely.
// A generation timeout falls back to an answer assembled from passage
// snippets.
func (e *SpeculativeExecutor) boundedGenerate(ctx context.Context, query domain.Query, passages []domain.RetrievedPassage, profile domain.ModeProfile, deadline time.Time) string {
	remaining := time.Until(deadline)
	if remaining < minGenerationSlice {
		remaining = minGenerationSlice
	}
	genCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	answer, err := e.generator.GenerateAnswer(genCtx, query.Text, passages, ports.GenerateOptions{
		Temperature: e.temperature,
		MaxTokens:   profile.MaxTokens,
	})
	if err != nil {
		slog.Warn("speculative_generation_degraded", "error", err)
		return snippetFallbackAnswer(passages)
	}
	return strings.TrimSpace(answer)
}

// snippetFallbackAnswer assembles a retrieval-only answer from the top
// passage snippets when generation is unavailable. Returns empty when
// there is nothing to quote, which drives confidence to the low end.
func snippetFallbackAnswer(passages []domain.RetrievedPassage) string {
	if len(passages) == 0 {
		return ""
	}
	limit := 2
	if len(passages) < limit {
		limit = len(passages)
	}
	snippets := make([]string, 0, limit)
	for _, p := range passages[:limit] {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		snippets = append(snippets, truncateRunes(text, snippetChars))
	}
	if len(snippets) == 0 {
		return ""
	}
	return "Based on the most relevant sources:\n" + strings.Join(snippets, "\n")
}

// truncateRunes cuts s to at most max runes, never splitting a multi-byte
// character, and marks the cut with an ellipsis.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	var seen int
	for i := range s {
		if seen == max {
			return s[:i] + "…"
		}
		seen++
	}
	return s
}
