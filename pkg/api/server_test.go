package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/middleware"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage"
	"github.com/platinummonkey/unwind/pkg/usage"
)

func TestRoutesRegistered(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/api/auth/register"},
		{"POST", "/api/auth/login"},
		{"POST", "/api/auth/refresh"},
		{"POST", "/api/auth/logout"},
		{"GET", "/api/auth/me"},
		{"POST", "/api/usage"},
		{"GET", "/api/usage"},
		{"GET", "/api/usage/123"},
		{"PUT", "/api/usage/123"},
		{"DELETE", "/api/usage/123"},
		{"GET", "/api/analytics/dashboard"},
		{"GET", "/api/analytics/stats"},
		{"GET", "/api/analytics/risk-score"},
		{"GET", "/api/analytics/risk-history"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			assert.True(t, env.server.Router().Match(req, &match), "Route %s %s should be registered", tt.method, tt.path)
			assert.NoError(t, match.MatchErr)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Health = observability.NewHealthChecker(db, nil, "test")
		cfg.Metrics = metrics
		cfg.Registry = registry
	})

	rec := env.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	rec = env.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	env.signUp(t, "sam")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthAttemptsTotal.WithLabelValues("register", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("POST", "/api/auth/register", "201")))

	rec = env.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unwind_auth_attempts_total")
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1, Burst: 2}, nil)
	})
	_, tokens := env.signUp(t, "sam")

	login := map[string]string{"email": "sam@example.com", "password": "secret123"}
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/auth/login", "", login).Code)

	rec := env.do(http.MethodPost, "/api/auth/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// authenticated routes are not limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/auth/me", tokens.AccessToken, nil).Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.CORSOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/usage", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"field errors", auth.ValidationErrors{{Field: "email", Message: "Email is required"}}, http.StatusBadRequest},
		{"usage validation", fmt.Errorf("wrapped: %w", &usage.ValidationError{Index: -1, Field: "date", Reason: "is required"}), http.StatusBadRequest},
		{"not found", fmt.Errorf("failed to get: %w", storage.ErrNotFound), http.StatusNotFound},
		{"named conflict", &storage.ConflictError{Field: "email"}, http.StatusConflict},
		{"bare conflict", storage.ErrConflict, http.StatusConflict},
		{"expired token", auth.ErrTokenExpired, http.StatusUnauthorized},
		{"anything else", errors.New("pq: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, "gone")
			assert.Equal(t, tt.status, rec.Code)

			envelope := decodeEnvelope(t, rec)
			assert.False(t, envelope.Success)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", envelope.Message)
				assert.NotContains(t, rec.Body.String(), "connection reset")
			}
		})
	}
}
