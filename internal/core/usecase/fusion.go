package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

const (
	defaultRRFK           = 60
	minPerspectives       = 2
	perspectiveMaxTokens  = 120
	perspectiveWordsLong  = 18
	perspectiveWordsShort = 8
)

// RAGFusion runs multi-perspective retrieval: it paraphrases the query,
// fans the searches out concurrently, and merges the ranked lists with
// Reciprocal Rank Fusion.
type RAGFusion struct {
	generator       ports.TextGenerator
	embedder        ports.Embedder
	retriever       ports.PassageRetriever
	rrfK            int
	maxPerspectives int
	temperature     float64
	perTimeout      time.Duration
}

func NewRAGFusion(
	generator ports.TextGenerator,
	embedder ports.Embedder,
	retriever ports.PassageRetriever,
	rrfK int,
	maxPerspectives int,
	temperature float64,
	perTimeout time.Duration,
) *RAGFusion {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	if maxPerspectives < minPerspectives {
		maxPerspectives = 7
	}
	if temperature <= 0 {
		temperature = 0.8
	}
	if perTimeout <= 0 {
		perTimeout = 3 * time.Second
	}
	return &RAGFusion{
		generator:       generator,
		embedder:        embedder,
		retriever:       retriever,
		rrfK:            rrfK,
		maxPerspectives: maxPerspectives,
		temperature:     temperature,
		perTimeout:      perTimeout,
	}
}

// PerspectiveCount adapts the fan-out width to query size and complexity:
// short simple queries get the minimum, long multi-hop queries the maximum.
func (f *RAGFusion) PerspectiveCount(query domain.Query, complexity domain.ComplexityScore) int {
	count := minPerspectives
	words := wordCount(query.Text)
	if words >= perspectiveWordsShort {
		count++
	}
	if words >= perspectiveWordsLong {
		count++
	}
	count += int(complexity.Value * 3)
	if count > f.maxPerspectives {
		count = f.maxPerspectives
	}
	if count < minPerspectives {
		count = minPerspectives
	}
	return count
}

// FusedSearch retrieves for every perspective concurrently and returns the
// RRF-merged top passages together with the original query's vector for
// downstream diversification (nil when embedding failed). A perspective
// that fails or times out is dropped; fusion merges whatever completed.
func (f *RAGFusion) FusedSearch(ctx context.Context, query domain.Query, topK, numPerspectives int) ([]domain.RetrievedPassage, []float32) {
	perspectives := f.generatePerspectives(ctx, query.Text, numPerspectives)

	lists := make([][]domain.RetrievedPassage, len(perspectives))
	var queryVector []float32
	var mu sync.Mutex

	g, groupCtx := errgroup.WithContext(ctx)
	for i, perspective := range perspectives {
		i, perspective := i, perspective
		g.Go(func() error {
			perCtx, cancel := context.WithTimeout(groupCtx, f.perTimeout)
			defer cancel()

			vector, err := f.embedder.EmbedQuery(perCtx, perspective)
			if err != nil {
				slog.Warn("fusion_perspective_dropped", "stage", "embed", "perspective", i, "error", err)
				return nil
			}
			if i == 0 {
				mu.Lock()
				queryVector = vector
				mu.Unlock()
			}

			passages, err := f.retriever.Search(perCtx, vector, topK, query.Filter)
			if err != nil {
				slog.Warn("fusion_perspective_dropped", "stage", "search", "perspective", i, "error", err)
				return nil
			}
			mu.Lock()
			lists[i] = passages
			mu.Unlock()
			return nil
		})
	}
	// Best-effort join: perspective errors are swallowed above, so this
	// only waits for the fan-out to settle.
	_ = g.Wait()

	return fusePassagesRRF(lists, f.rrfK, topK), queryVector
}

// generatePerspectives asks the generator for paraphrases at a diversity
// temperature. The original query is always perspective zero; a paraphrase
// failure degrades to single-perspective search.
func (f *RAGFusion) generatePerspectives(ctx context.Context, queryText string, total int) []string {
	perspectives := []string{queryText}
	if total <= 1 {
		return perspectives
	}

	raw, err := f.generator.Generate(ctx, buildPerspectivePrompt(queryText, total-1), ports.GenerateOptions{
		Temperature: f.temperature,
		MaxTokens:   perspectiveMaxTokens * (total - 1),
	})
	if err != nil {
		slog.Warn("fusion_perspective_generation_failed", "error", err)
		return perspectives
	}

	seen := map[string]struct{}{normalizeQueryText(queryText): {}}
	for _, line := range strings.Split(raw, "\n") {
		candidate := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) \t"))
		if candidate == "" {
			continue
		}
		norm := normalizeQueryText(candidate)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		perspectives = append(perspectives, candidate)
		if len(perspectives) == total {
			break
		}
	}
	return perspectives
}

func buildPerspectivePrompt(queryText string, n int) string {
	return fmt.Sprintf(`Rewrite the following question as %d alternative search queries.
Vary the wording and emphasis so the set covers different angles of the question.
Return one query per line, nothing else.

Question:
%s`, n, queryText)
}

type fusedPassage struct {
	passage  domain.RetrievedPassage
	score    float64
	bestRank int
}

// fusePassagesRRF merges ranked lists with Reciprocal Rank Fusion:
// score(p) accumulates 1/(k+rank) across every list containing p, so a
// passage surfacing in many perspectives outranks one with a single good
// rank. Accumulation is commutative, so list order cannot change the
// result; ties break on the passage's best individual rank.
func fusePassagesRRF(lists [][]domain.RetrievedPassage, rrfK, topK int) []domain.RetrievedPassage {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]fusedPassage)
	for _, list := range lists {
		for rank, passage := range list {
			key := passageKey(passage)
			entry, ok := acc[key]
			if !ok {
				entry = fusedPassage{passage: passage, bestRank: rank + 1}
			}
			entry.passage = preferRicherPassage(entry.passage, passage)
			entry.score += 1.0 / float64(rrfK+rank+1)
			if rank+1 < entry.bestRank {
				entry.bestRank = rank + 1
			}
			acc[key] = entry
		}
	}

	out := make([]fusedPassage, 0, len(acc))
	for _, entry := range acc {
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].bestRank != out[j].bestRank {
			return out[i].bestRank < out[j].bestRank
		}
		return passageKey(out[i].passage) < passageKey(out[j].passage)
	})

	merged := make([]domain.RetrievedPassage, 0, len(out))
	for _, entry := range out {
		passage := entry.passage
		passage.Score = entry.score
		merged = append(merged, passage)
		if topK > 0 && len(merged) == topK {
			break
		}
	}
	return merged
}

func passageKey(p domain.RetrievedPassage) string {
	if p.ID != "" {
		return p.ID
	}
	return p.DocumentID + "|" + p.Text
}

func preferRicherPassage(current, candidate domain.RetrievedPassage) domain.RetrievedPassage {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.DocumentID == "" && candidate.DocumentID != "" {
		current.DocumentID = candidate.DocumentID
	}
	if current.Embedding == nil && candidate.Embedding != nil {
		current.Embedding = candidate.Embedding
	}
	return current
}
