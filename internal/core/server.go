// Package core is the ops HTTP chassis of the scheduler process. It serves
// health, the pending-work stats query, the manual maintenance trigger and
// the Prometheus scrape endpoint on a chi router.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"placement/internal/config"
	"placement/internal/scheduler"
	"placement/internal/types"
)

// defaultRequestTimeout bounds read-only handlers. The maintenance trigger
// runs under the request context alone since a full RunAll can be slow.
const defaultRequestTimeout = 30 * time.Second

// StatsProvider answers the pending-work query.
type StatsProvider interface {
	Collect(ctx context.Context, now time.Time) (*types.PendingWorkStats, error)
}

// MaintenanceRunner runs every task once, synchronously.
type MaintenanceRunner interface {
	RunAll(ctx context.Context) []scheduler.TaskResult
}

// Server holds the ops API dependencies.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Clock        types.Clock
	Stats        StatsProvider
	Maintenance  MaintenanceRunner
	HealthProbes []HealthProbe
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	router *chi.Mux
	// maintenanceMu rejects a manual run while another is in flight.
	maintenanceMu sync.Mutex
}

// NewServer validates the required dependencies. Routes are mounted
// separately with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		Clock:  types.RealClock{},
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MountRoutes registers the middleware chain and every ops route.
//
// Middleware order: Recoverer, RequestID, RequestLogger, Metrics. The
// recoverer is outermost so it also covers logging and metrics.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(MetricsMiddleware)

	s.router.Get("/health", s.HandleHealth)
	s.router.Handle("/metrics", s.metricsHandler())

	s.router.Route("/v1/ops", func(r chi.Router) {
		r.With(ContextTimeoutMiddleware(defaultRequestTimeout)).Get("/stats", s.HandleStats)
		r.Post("/maintenance", s.HandleMaintenance)
	})
}

// HTTPServer returns an http.Server listening on the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.Config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) metricsHandler() http.Handler {
	if s.Gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
