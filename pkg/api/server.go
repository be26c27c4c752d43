package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/middleware"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage"
)

// Clock returns the current time in the reference timezone. Its calendar
// date is "today" for validation and analytics.
type Clock func() time.Time

// ClockIn returns a Clock reporting wall time in loc
func ClockIn(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// Config holds the server's collaborators. Metrics, Registry, OTelMetrics,
// Limiter and Health are optional.
type Config struct {
	Users     storage.UserStore
	Usage     storage.UsageStore
	Analytics *analytics.Service
	Issuer    *auth.TokenIssuer
	Hasher    *auth.PasswordHasher

	Limiter     *middleware.RateLimiter
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	OTelMetrics *observability.OTelMetrics
	Tracing     bool

	Logger         *observability.Logger
	Clock          Clock
	ComputeTimeout time.Duration
	CORSOrigins    []string
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// RouteRegistrar is an interface for types that can register routes on the
// authenticated router
type RouteRegistrar interface {
	RegisterRoutes(protected *mux.Router)
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = ClockIn(time.UTC)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(cfg)

	var handler http.Handler = s.router
	handler = httputil.Chain(
		httputil.RequestIDMiddleware(cfg.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.CORSOrigins),
	)(handler)
	if cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "unwind-api")
	}
	s.handler = handler
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Route not found")
	})
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	if cfg.Health != nil {
		s.router.HandleFunc("/health/live", cfg.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", cfg.Health.Readiness).Methods("GET")
	}
	if cfg.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(cfg.Registry)).Methods("GET")
	}

	public := s.router.NewRoute().Subrouter()
	if cfg.Limiter != nil {
		public.Use(cfg.Limiter.Handler)
	}
	protected := s.router.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthMiddleware(cfg.Issuer, cfg.Users).Handler)

	NewAuthHandlers(cfg.Users, cfg.Issuer, cfg.Hasher, cfg.Metrics).RegisterRoutes(public, protected)

	var recorders []UsageRecorder
	if cfg.Metrics != nil {
		recorders = append(recorders, cfg.Metrics)
	}
	if cfg.OTelMetrics != nil {
		recorders = append(recorders, cfg.OTelMetrics)
	}
	s.register(protected,
		NewUsageHandlers(cfg.Usage, cfg.Analytics, cfg.Clock, recorders...),
		NewAnalyticsHandlers(cfg.Analytics, cfg.Clock, cfg.ComputeTimeout),
	)
}

func (s *Server) register(protected *mux.Router, registrars ...RouteRegistrar) {
	for _, r := range registrars {
		r.RegisterRoutes(protected)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
