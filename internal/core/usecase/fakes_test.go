package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
)

type embedderFake struct {
	mu      sync.Mutex
	queries []string
	vector  []float32
	err     error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.vector == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return f.vector, nil
}

type retrieverFake struct {
	mu       sync.Mutex
	calls    int
	limits   []int
	passages []domain.RetrievedPassage
	err      error
	delay    time.Duration
}

func (f *retrieverFake) Search(ctx context.Context, _ []float32, limit int, _ domain.SearchFilter) ([]domain.RetrievedPassage, error) {
	f.mu.Lock()
	f.calls++
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.passages) > limit {
		return f.passages[:limit], nil
	}
	return f.passages, nil
}

type generatorFake struct {
	mu        sync.Mutex
	answer    string
	genText   string
	answerErr error
	genErr    error
	prompts   []string
	opts      []ports.GenerateOptions
	delay     time.Duration
}

func (f *generatorFake) GenerateAnswer(ctx context.Context, _ string, _ []domain.RetrievedPassage, opts ports.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.answerErr != nil {
		return "", f.answerErr
	}
	if f.answer == "" {
		return "generated answer", nil
	}
	return f.answer, nil
}

func (f *generatorFake) Generate(_ context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.genText, nil
}

type cacheFake struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	gets    []string
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *cacheFake) Get(_ context.Context, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, key)
	v, ok := f.entries[key]
	return v, ok
}

func (f *cacheFake) Set(_ context.Context, key, value string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
	f.ttls[key] = ttl
}

func (f *cacheFake) keyWithPrefix(prefix string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			return k, true
		}
	}
	return "", false
}

type queueFake struct {
	mu       sync.Mutex
	outcomes []domain.RoutingOutcome
	notices  []string
	err      error
}

func (f *queueFake) PublishOutcome(_ context.Context, outcome domain.RoutingOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *queueFake) SubscribeOutcomes(context.Context, func(context.Context, domain.RoutingOutcome) error) error {
	return nil
}

func (f *queueFake) PublishAdminNotice(_ context.Context, subject, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, subject+": "+detail)
	return nil
}

type outcomeStoreFake struct {
	mu       sync.Mutex
	appended []domain.RoutingOutcome
	window   []domain.RoutingOutcome
	feedback map[string]float64
	listErr  error
}

func newOutcomeStoreFake() *outcomeStoreFake {
	return &outcomeStoreFake{feedback: map[string]float64{}}
}

func (f *outcomeStoreFake) Append(_ context.Context, outcome domain.RoutingOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, outcome)
	return nil
}

func (f *outcomeStoreFake) AttachFeedback(_ context.Context, outcomeID string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback[outcomeID] = score
	return nil
}

func (f *outcomeStoreFake) ListSince(_ context.Context, _ time.Time) ([]domain.RoutingOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.window, nil
}

type auditStoreFake struct {
	mu      sync.Mutex
	results []domain.TuningResult
}

func (f *auditStoreFake) SaveTuningResult(_ context.Context, result domain.TuningResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func (f *auditStoreFake) ListTuningResults(_ context.Context, limit int) ([]domain.TuningResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && len(f.results) > limit {
		return f.results[len(f.results)-limit:], nil
	}
	return f.results, nil
}
