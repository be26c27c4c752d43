package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/httputil"
)

// AnalyticsHandlers provides analytics API endpoints
type AnalyticsHandlers struct {
	service *analytics.Service
	clock   Clock
	timeout time.Duration
}

// NewAnalyticsHandlers creates a new analytics handlers instance. timeout
// bounds each computation; zero means no bound beyond the request's own.
func NewAnalyticsHandlers(service *analytics.Service, clock Clock, timeout time.Duration) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		service: service,
		clock:   clock,
		timeout: timeout,
	}
}

// RegisterRoutes registers analytics API routes
func (h *AnalyticsHandlers) RegisterRoutes(protected *mux.Router) {
	protected.HandleFunc("/api/analytics/dashboard", h.getDashboard).Methods("GET")
	protected.HandleFunc("/api/analytics/stats", h.getStats).Methods("GET")
	protected.HandleFunc("/api/analytics/risk-score", h.getRiskScore).Methods("GET")
	protected.HandleFunc("/api/analytics/risk-history", h.getRiskHistory).Methods("GET")
}

func (h *AnalyticsHandlers) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(r.Context(), h.timeout)
	}
	return context.WithCancel(r.Context())
}

// getDashboard handles GET /api/analytics/dashboard
func (h *AnalyticsHandlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	dashboard, err := h.service.Dashboard(ctx, userID, h.clock())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, dashboard)
}

// getStats handles GET /api/analytics/stats
func (h *AnalyticsHandlers) getStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	stats, err := h.service.Stats(ctx, userID, h.clock())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, stats)
}

// getRiskScore handles GET /api/analytics/risk-score
func (h *AnalyticsHandlers) getRiskScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	report, err := h.service.RiskScore(ctx, userID, h.clock())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, report)
}

// getRiskHistory handles GET /api/analytics/risk-history
// Query params:
//   - days: number of days ending today (1-365), default: 30
func (h *AnalyticsHandlers) getRiskHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, err := httputil.ParseQueryInt(r, "days", analytics.DefaultHistoryDays)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	snapshots, err := h.service.RiskHistory(ctx, userID, days, h.clock())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	httputil.WriteSuccess(w, map[string][]analytics.Snapshot{"snapshots": snapshots})
}
