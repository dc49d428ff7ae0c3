package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the location API, the oracle callback, and health,
// readiness and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server. events may be nil when no audit store is
// configured.
func NewServer(addr string, svc Service, events EventLog, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	api := &api{svc: svc, events: events, logger: logger}
	mux.HandleFunc("POST /v1/locations/{id}/readings", api.submitReading)
	mux.HandleFunc("POST /v1/locations/{id}/compute", api.compute)
	mux.HandleFunc("POST /v1/locations/{id}/disclosure", api.requestDisclosure)
	mux.HandleFunc("GET /v1/locations/{id}", api.status)
	mux.HandleFunc("GET /v1/locations/{id}/prediction", api.prediction)
	mux.HandleFunc("GET /v1/locations/{id}/alert", api.alert)
	mux.HandleFunc("GET /v1/locations/{id}/readings/count", api.readingCount)
	mux.HandleFunc("GET /v1/locations/{id}/events", api.locationEvents)
	mux.HandleFunc("POST /v1/oracle/callback", api.oracleCallback)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
