package ports

import (
	"context"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
)

// PassageRetriever performs vector search against the retrieval corpus.
// Implementations must honor ctx cancellation so a timed-out search stops
// consuming resources.
type PassageRetriever interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedPassage, error)
}

// Embedder builds vectors for query text and perspective paraphrases.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// GenerateOptions bounds one generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// TextGenerator creates answer text and query paraphrases.
// Implementations must honor ctx cancellation.
type TextGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.RetrievedPassage, opts GenerateOptions) (string, error)
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// ResponseCache is the namespaced multi-level response cache. Lookups never
// fail: an unreachable tier reads as a miss and writes are best effort.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}

// OutcomeQueue moves routing outcomes from the api instance to the tuner
// worker and carries administrator notifications.
type OutcomeQueue interface {
	PublishOutcome(ctx context.Context, outcome domain.RoutingOutcome) error
	SubscribeOutcomes(ctx context.Context, handler func(context.Context, domain.RoutingOutcome) error) error
	PublishAdminNotice(ctx context.Context, subject, detail string) error
}

// OutcomeStore persists the append-only routing outcome log.
type OutcomeStore interface {
	Append(ctx context.Context, outcome domain.RoutingOutcome) error
	AttachFeedback(ctx context.Context, outcomeID string, score float64) error
	ListSince(ctx context.Context, since time.Time) ([]domain.RoutingOutcome, error)
}

// TuningAuditStore keeps the apply/rollback audit trail for operators.
type TuningAuditStore interface {
	SaveTuningResult(ctx context.Context, result domain.TuningResult) error
	ListTuningResults(ctx context.Context, limit int) ([]domain.TuningResult, error)
}
