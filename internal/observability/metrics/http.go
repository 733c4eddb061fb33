package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	routeTotal       *prometheus.CounterVec
	routeDuration    *prometheus.HistogramVec
	routeConfidence  *prometheus.HistogramVec
	cacheHitTotal    *prometheus.CounterVec
	escalationsTotal *prometheus.CounterVec
	throttledTotal   *prometheus.CounterVec
	thresholdValue   *prometheus.GaugeVec
	tuningRunsTotal  *prometheus.CounterVec
	tuningRollbacks  prometheus.Counter
	feedbackTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aqr",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aqr",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	routeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "routing",
			Name:      "queries_total",
			Help:      "Total routed queries by final mode and outcome.",
		},
		[]string{"service", "mode", "escalated", "cache_hit"},
	)
	routeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aqr",
			Subsystem: "routing",
			Name:      "duration_seconds",
			Help:      "End-to-end routing duration in seconds by final mode.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 20},
		},
		[]string{"service", "mode"},
	)
	routeConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aqr",
			Subsystem: "routing",
			Name:      "confidence",
			Help:      "Distribution of final answer confidence by mode.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service", "mode"},
	)
	cacheHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "routing",
			Name:      "cache_hits_total",
			Help:      "Total answers served from cache by mode.",
		},
		[]string{"service", "mode"},
	)
	escalationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "routing",
			Name:      "escalations_total",
			Help:      "Total speculative answers rejected in favor of the deep path.",
		},
		[]string{"service", "mode"},
	)
	throttledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Total requests rejected by traffic control.",
		},
		[]string{"service", "reason"},
	)
	thresholdValue := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aqr",
			Subsystem: "tuning",
			Name:      "threshold",
			Help:      "Live routing threshold values.",
		},
		[]string{"service", "field"},
	)
	tuningRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "tuning",
			Name:      "runs_total",
			Help:      "Total tuning cycles by result.",
		},
		[]string{"service", "result"},
	)
	tuningRollbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "tuning",
			Name:      "rollbacks_total",
			Help:      "Total threshold changes reverted after quality regressions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	feedbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqr",
			Subsystem: "routing",
			Name:      "feedback_total",
			Help:      "Total feedback submissions by score band.",
		},
		[]string{"service", "band"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		routeTotal,
		routeDuration,
		routeConfidence,
		cacheHitTotal,
		escalationsTotal,
		throttledTotal,
		thresholdValue,
		tuningRunsTotal,
		tuningRollbacks,
		feedbackTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		routeTotal:       routeTotal,
		routeDuration:    routeDuration,
		routeConfidence:  routeConfidence,
		cacheHitTotal:    cacheHitTotal,
		escalationsTotal: escalationsTotal,
		throttledTotal:   throttledTotal,
		thresholdValue:   thresholdValue,
		tuningRunsTotal:  tuningRunsTotal,
		tuningRollbacks:  tuningRollbacks,
		feedbackTotal:    feedbackTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordRoute(service, mode string, escalated, cacheHit bool, confidence float64, duration time.Duration) {
	m.routeTotal.WithLabelValues(service, mode, strconv.FormatBool(escalated), strconv.FormatBool(cacheHit)).Inc()
	m.routeDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	m.routeConfidence.WithLabelValues(service, mode).Observe(confidence)
	if cacheHit {
		m.cacheHitTotal.WithLabelValues(service, mode).Inc()
	}
	if escalated {
		m.escalationsTotal.WithLabelValues(service, mode).Inc()
	}
}

func (m *HTTPServerMetrics) RecordThrottle(service, reason string) {
	m.throttledTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordThresholds(service string, complexitySimple, complexityComplex, confidenceHigh, confidenceLow float64) {
	m.thresholdValue.WithLabelValues(service, "complexity_simple").Set(complexitySimple)
	m.thresholdValue.WithLabelValues(service, "complexity_complex").Set(complexityComplex)
	m.thresholdValue.WithLabelValues(service, "confidence_high").Set(confidenceHigh)
	m.thresholdValue.WithLabelValues(service, "confidence_low").Set(confidenceLow)
}

func (m *HTTPServerMetrics) RecordTuningRun(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.tuningRunsTotal.WithLabelValues(service, result).Inc()
	if result == "rolled_back" {
		m.tuningRollbacks.Inc()
	}
}

func (m *HTTPServerMetrics) RecordFeedback(service string, score float64) {
	band := "low"
	switch {
	case score >= 0.7:
		band = "high"
	case score >= 0.4:
		band = "medium"
	}
	m.feedbackTotal.WithLabelValues(service, band).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
