package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

// fusionCandidateMultiplier widens the fused candidate pool beyond the
// final top-k so diversification has redundant passages to trade away.
const fusionCandidateMultiplier = 3

const unableToAnswerText = "I could not find enough relevant information to answer that. Try rephrasing the question or narrowing it down."

var errEmptyQueryText = errors.New("query text is empty")

// AdaptiveRouter is the single Route entry point: it classifies the query,
// speculates in the cheapest plausible mode, and escalates to the fused
// deep path only when speculative confidence falls short.
type AdaptiveRouter struct {
	classifier  *ComplexityClassifier
	profiles    *ModeProfileRegistry
	thresholds  *ThresholdStore
	speculative *SpeculativeExecutor
	policy      *EscalationPolicy
	fusion      *RAGFusion
	diversifier *MMRDiversifier
	generator   ports.TextGenerator
	scorer      *ConfidenceScorer
	cache       ports.ResponseCache
	queue       ports.OutcomeQueue

	adaptive        bool
	deepTemperature float64
}

// AdaptiveRouterDeps wires the router's collaborators. All fields except
// Queue are required.
type AdaptiveRouterDeps struct {
	Classifier  *ComplexityClassifier
	Profiles    *ModeProfileRegistry
	Thresholds  *ThresholdStore
	Speculative *SpeculativeExecutor
	Policy      *EscalationPolicy
	Fusion      *RAGFusion
	Diversifier *MMRDiversifier
	Generator   ports.TextGenerator
	Scorer      *ConfidenceScorer
	Cache       ports.ResponseCache
	Queue       ports.OutcomeQueue

	AdaptiveEnabled bool
	DeepTemperature float64
}

func NewAdaptiveRouter(deps AdaptiveRouterDeps) *AdaptiveRouter {
	if deps.DeepTemperature <= 0 {
		deps.DeepTemperature = 0.8
	}
	return &AdaptiveRouter{
		classifier:      deps.Classifier,
		profiles:        deps.Profiles,
		thresholds:      deps.Thresholds,
		speculative:     deps.Speculative,
		policy:          deps.Policy,
		fusion:          deps.Fusion,
		diversifier:     deps.Diversifier,
		generator:       deps.Generator,
		scorer:          deps.Scorer,
		cache:           deps.Cache,
		queue:           deps.Queue,
		adaptive:        deps.AdaptiveEnabled,
		deepTemperature: deps.DeepTemperature,
	}
}

var _ ports.QueryRouter = (*AdaptiveRouter)(nil)

func (r *AdaptiveRouter) Route(ctx context.Context, query domain.Query) (*domain.RouteResult, error) {
	query.Text = strings.TrimSpace(query.Text)
	if query.Text == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "route", errEmptyQueryText)
	}

	start := time.Now()
	thresholds := r.thresholds.Current()
	complexity := r.classifier.Classify(query)
	mode := r.selectMode(query, complexity, thresholds)
	profile := r.profiles.ProfileFor(mode)

	// newPipeline starts in the speculated state; Execute is what puts
	// the request there.
	state := newPipeline()
	spec := r.speculative.Execute(ctx, query, mode, profile)

	decision, ambiguous := r.decide(mode, spec, thresholds)

	result := &domain.RouteResult{
		OutcomeID:  uuid.NewString(),
		Answer:     spec.Answer,
		Passages:   spec.Passages,
		Mode:       mode,
		Confidence: spec.Confidence,
		CacheHit:   spec.CacheHit,
	}

	switch decision {
	case domain.DecisionAccept:
		if err := state.advance(domain.StateAccepted); err != nil {
			return nil, err
		}
	case domain.DecisionEscalate:
		if err := state.advance(domain.StateEscalated); err != nil {
			return nil, err
		}
		deep, err := r.escalate(ctx, query, complexity, mode, state)
		if err != nil {
			return nil, err
		}
		result.Answer = deep.Answer
		result.Passages = deep.Passages
		result.Mode = deep.Mode
		result.Confidence = deep.Confidence
		result.CacheHit = deep.CacheHit
		result.Escalated = true
	}

	if err := state.advance(domain.StateDone); err != nil {
		return nil, err
	}

	if result.Answer == "" {
		result.Answer = unableToAnswerText
	}
	result.LatencyMS = time.Since(start).Milliseconds()

	r.publishOutcome(ctx, result, complexity, ambiguous)
	return result, nil
}

// selectMode honors an explicit override, otherwise maps the complexity
// score onto a mode. With adaptive routing disabled every query runs
// balanced, matching a fixed-pipeline deployment.
func (r *AdaptiveRouter) selectMode(query domain.Query, complexity domain.ComplexityScore, thresholds domain.ThresholdSet) domain.Mode {
	if !r.adaptive {
		return domain.ModeBalanced
	}
	if query.ModeOverride != "" {
		if mode, ok := domain.ParseMode(string(query.ModeOverride)); ok {
			return mode
		}
		slog.Warn("route_mode_override_invalid", "override", query.ModeOverride)
	}
	return MapToMode(complexity, thresholds)
}

func (r *AdaptiveRouter) decide(mode domain.Mode, spec domain.SpeculativeResult, thresholds domain.ThresholdSet) (domain.Decision, bool) {
	if !r.adaptive {
		return domain.DecisionAccept, false
	}
	return r.policy.Decide(mode, spec, thresholds)
}

// escalate runs the deep path: fused multi-perspective retrieval,
// diversification, then a full-budget generation. Deep answers are cached
// under their own namespace so repeated escalations of the same query
// short-circuit here.
func (r *AdaptiveRouter) escalate(ctx context.Context, query domain.Query, complexity domain.ComplexityScore, from domain.Mode, state *pipeline) (*domain.RouteResult, error) {
	target := r.policy.Target(from)
	profile := r.profiles.ProfileFor(target)
	key := responseCacheKey(cacheNamespaceFinal, target, query.Text, query.Filter)

	if !query.BypassCache {
		if cached, ok := r.cache.Get(ctx, key); ok {
			var deep domain.RouteResult
			if err := json.Unmarshal([]byte(cached), &deep); err == nil {
				if err := state.advance(domain.StateFused); err != nil {
					return nil, err
				}
				deep.Mode = target
				deep.CacheHit = true
				return &deep, nil
			}
			slog.Warn("deep_cache_entry_corrupt", "key", key)
		}
	}

	deepCtx, cancel := context.WithTimeout(ctx, profile.Timeout)
	defer cancel()

	perspectives := r.fusion.PerspectiveCount(query, complexity)
	candidates, queryVector := r.fusion.FusedSearch(deepCtx, query, profile.TopK*fusionCandidateMultiplier, perspectives)
	if err := state.advance(domain.StateFused); err != nil {
		return nil, err
	}

	passages := r.diversifier.Diversify(queryVector, candidates, profile.TopK)
	answer := r.deepGenerate(deepCtx, query, passages, profile)

	deep := &domain.RouteResult{
		Answer:     answer,
		Passages:   passages,
		Mode:       target,
		Confidence: r.scorer.Score(passages, false, nil),
	}

	if answer != "" {
		if payload, err := json.Marshal(deep); err == nil {
			r.cache.Set(ctx, key, string(payload), profile.CacheTTL)
		}
	}
	return deep, nil
}

func (r *AdaptiveRouter) deepGenerate(ctx context.Context, query domain.Query, passages []domain.RetrievedPassage, profile domain.ModeProfile) string {
	answer, err := r.generator.GenerateAnswer(ctx, query.Text, passages, ports.GenerateOptions{
		Temperature: r.deepTemperature,
		MaxTokens:   profile.MaxTokens,
	})
	if err != nil {
		slog.Warn("deep_generation_degraded", "error", err)
		return snippetFallbackAnswer(passages)
	}
	return strings.TrimSpace(answer)
}

// publishOutcome emits the routing record for the tuning pipeline. Queue
// trouble never fails the request.
func (r *AdaptiveRouter) publishOutcome(ctx context.Context, result *domain.RouteResult, complexity domain.ComplexityScore, ambiguous bool) {
	if r.queue == nil {
		return
	}
	outcome := domain.RoutingOutcome{
		ID:              result.OutcomeID,
		Mode:            result.Mode,
		ComplexityScore: complexity.Value,
		Confidence:      result.Confidence,
		Escalated:       result.Escalated,
		Ambiguous:       ambiguous,
		CacheHit:        result.CacheHit,
		LatencyMS:       result.LatencyMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := r.queue.PublishOutcome(ctx, outcome); err != nil {
		slog.Warn("routing_outcome_publish_failed", "outcome_id", outcome.ID, "error", err)
	}
}
