package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
	"github.com/showjihyun/agentrag-v1-sub018/internal/observability/metrics"
)

const defaultTuningHistoryLimit = 50

type Router struct {
	routing  ports.QueryRouter
	feedback ports.FeedbackRecorder
	admin    ports.ThresholdAdmin
	tuner    ports.TuningService
	audit    ports.TuningAuditStore

	metrics *metrics.HTTPServerMetrics
	service string
	traffic TrafficConfig
}

func NewRouter(
	routing ports.QueryRouter,
	feedback ports.FeedbackRecorder,
	admin ports.ThresholdAdmin,
	tuner ports.TuningService,
	audit ports.TuningAuditStore,
	serverMetrics *metrics.HTTPServerMetrics,
	service string,
	traffic TrafficConfig,
) *Router {
	return &Router{
		routing:  routing,
		feedback: feedback,
		admin:    admin,
		tuner:    tuner,
		audit:    audit,
		metrics:  serverMetrics,
		service:  service,
		traffic:  traffic,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.routeQuery)
	mux.HandleFunc("/v1/feedback", rt.recordFeedback)
	mux.HandleFunc("/v1/admin/thresholds", rt.thresholds)
	mux.HandleFunc("/v1/admin/tuning/history", rt.tuningHistory)
	mux.HandleFunc("/v1/admin/tuning/analysis", rt.tuningAnalysis)
	mux.HandleFunc("/v1/admin/tuning/run", rt.tuningRun)
	mux.Handle("/metrics", rt.metrics.Handler())

	var handler http.Handler = mux
	handler = rt.trafficControlMiddleware(handler)
	handler = rt.metrics.Middleware(rt.service, handler)
	handler = accessLogMiddleware(handler)
	handler = recoverMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) routeQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var query domain.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(query.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query text is required"})
		return
	}

	result, err := rt.routing.Route(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	rt.metrics.RecordRoute(
		rt.service,
		string(result.Mode),
		result.Escalated,
		result.CacheHit,
		result.Confidence,
		durationFromMillis(result.LatencyMS),
	)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		OutcomeID string  `json:"outcome_id"`
		Score     float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := rt.feedback.RecordFeedback(r.Context(), req.OutcomeID, req.Score); err != nil {
		writeError(w, err)
		return
	}

	rt.metrics.RecordFeedback(rt.service, req.Score)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (rt *Router) thresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"current": rt.admin.CurrentThresholds(),
			"history": rt.admin.ThresholdHistory(),
		})
	case http.MethodPut, http.MethodPost:
		var set domain.ThresholdSet
		if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if err := rt.admin.OverrideThresholds(r.Context(), set); err != nil {
			writeError(w, err)
			return
		}
		current := rt.admin.CurrentThresholds()
		rt.metrics.RecordThresholds(
			rt.service,
			current.ComplexitySimple,
			current.ComplexityComplex,
			current.ConfidenceHigh,
			current.ConfidenceLow,
		)
		writeJSON(w, http.StatusOK, map[string]any{"current": current})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) tuningHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := defaultTuningHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	results, err := rt.audit.ListTuningResults(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) tuningAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	analysis := rt.tuner.LastAnalysis()
	if analysis == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (rt *Router) tuningRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	dryRun := false
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dry_run must be a boolean"})
			return
		}
		dryRun = parsed
	}

	result, err := rt.tuner.RunOnce(r.Context(), dryRun)
	if err != nil {
		writeError(w, err)
		return
	}

	rt.metrics.RecordTuningRun(rt.service, tuningRunResult(result))
	writeJSON(w, http.StatusOK, result)
}

func tuningRunResult(result *domain.TuningResult) string {
	switch {
	case result.RolledBack:
		return "rolled_back"
	case result.DryRun:
		return "dry_run"
	case result.Applied:
		return "applied"
	default:
		return "skipped"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
