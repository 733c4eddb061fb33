package domain

import (
	"strings"
	"time"
)

// Mode determines the resource budget spent on a query.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeDeep     Mode = "deep"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeFast:
		return ModeFast, true
	case ModeBalanced:
		return ModeBalanced, true
	case ModeDeep:
		return ModeDeep, true
	default:
		return "", false
	}
}

// ConversationTurn is one prior turn of context, most recent last.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query is the immutable per-request input to the routing pipeline.
type Query struct {
	Text         string             `json:"text"`
	Context      []ConversationTurn `json:"context,omitempty"`
	ModeOverride Mode               `json:"mode_override,omitempty"`
	BypassCache  bool               `json:"bypass_cache,omitempty"`
	Filter       SearchFilter       `json:"filter"`
}

type SearchFilter struct {
	Category string `json:"category,omitempty"`
}

// ModeProfile bounds one mode's retrieval and generation budget.
type ModeProfile struct {
	Timeout   time.Duration `json:"timeout"`
	TopK      int           `json:"top_k"`
	CacheTTL  time.Duration `json:"cache_ttl"`
	MaxTokens int           `json:"max_tokens"`
}

// RetrievedPassage is one scored passage returned by the retrieval
// provider. Passed by value through fusion and diversification.
type RetrievedPassage struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
	Embedding  []float32 `json:"-"`
}

// SpeculativeResult is the outcome of one fast-path attempt.
// Immutable after construction.
type SpeculativeResult struct {
	Answer     string             `json:"answer"`
	Passages   []RetrievedPassage `json:"passages"`
	Confidence float64            `json:"confidence"`
	CacheHit   bool               `json:"cache_hit"`
	Elapsed    time.Duration      `json:"elapsed"`
}

// RouteResult is what the single Route entry point hands back to callers.
type RouteResult struct {
	OutcomeID  string             `json:"outcome_id"`
	Answer     string             `json:"answer"`
	Passages   []RetrievedPassage `json:"passages"`
	Mode       Mode               `json:"mode_used"`
	Confidence float64            `json:"confidence"`
	CacheHit   bool               `json:"cache_hit"`
	Escalated  bool               `json:"escalated"`
	LatencyMS  int64              `json:"latency_ms"`
}
