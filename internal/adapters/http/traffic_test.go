package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/observability/metrics"
)

func TestRateLimitReturns429(t *testing.T) {
	handler := newTestHandler(testDeps{}, TrafficConfig{
		RateLimitRPS:   1,
		RateLimitBurst: 1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureGateShedsWhenSaturated(t *testing.T) {
	gate := newBackpressureGate(1)

	if !gate.acquire(time.Millisecond) {
		t.Fatalf("expected first acquire to succeed")
	}
	if gate.acquire(10 * time.Millisecond) {
		t.Fatalf("expected second acquire to time out")
	}

	gate.release()
	if !gate.acquire(time.Millisecond) {
		t.Fatalf("expected acquire to succeed after release")
	}
}

// blockingRouter parks the first request until released so a second one
// can observe a saturated gate.
type blockingRouter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRouter) Route(_ context.Context, _ domain.Query) (*domain.RouteResult, error) {
	b.started <- struct{}{}
	<-b.release
	return &domain.RouteResult{Mode: domain.ModeFast}, nil
}

func TestBackpressureReturns503WhenSaturated(t *testing.T) {
	blocking := &blockingRouter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	rt := NewRouter(
		blocking,
		&feedbackFake{},
		&adminFake{current: domain.DefaultThresholds()},
		&tunerFake{result: &domain.TuningResult{}},
		&auditFake{},
		metrics.NewHTTPServerMetrics("test"),
		"test",
		TrafficConfig{MaxInFlight: 1, BackpressureWait: 20 * time.Millisecond},
	)
	handler := rt.Handler()

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"text":"slow"}`))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-blocking.started

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	close(blocking.release)

	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Fatalf("first request expected 200, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}
