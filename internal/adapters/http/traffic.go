package httpadapter

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// TrafficConfig bounds how much concurrent and sustained load the API
// accepts before shedding requests.
type TrafficConfig struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

func (rt *Router) trafficControlMiddleware(next http.Handler) http.Handler {
	handler := next
	if rt.traffic.MaxInFlight > 0 {
		handler = rt.backpressureMiddleware(handler)
	}
	if rt.traffic.RateLimitRPS > 0 {
		handler = rt.rateLimitMiddleware(handler)
	}
	return handler
}

func (rt *Router) rateLimitMiddleware(next http.Handler) http.Handler {
	burst := rt.traffic.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rt.traffic.RateLimitRPS), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			rt.metrics.RecordThrottle(rt.service, "rate_limit")
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) backpressureMiddleware(next http.Handler) http.Handler {
	gate := newBackpressureGate(rt.traffic.MaxInFlight)
	wait := rt.traffic.BackpressureWait
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !gate.acquire(wait) {
			rt.metrics.RecordThrottle(rt.service, "backpressure")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server overloaded, try again later"})
			return
		}
		defer gate.release()
		next.ServeHTTP(w, r)
	})
}

// backpressureGate is a counting semaphore with a bounded wait for a slot.
type backpressureGate struct {
	slots chan struct{}
}

func newBackpressureGate(capacity int) *backpressureGate {
	return &backpressureGate{
		slots: make(chan struct{}, capacity),
	}
}

func (g *backpressureGate) acquire(wait time.Duration) bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case g.slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (g *backpressureGate) release() {
	<-g.slots
}

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
