// Package http provides the HTTP control API.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/flightcache/internal/application"
	"github.com/jobrunner/flightcache/internal/config"
	"github.com/jobrunner/flightcache/internal/ports/input"
)

// Syncer triggers a manifest sync on demand.
type Syncer interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
}

// MetricsExporter instruments requests and serves collected metrics.
type MetricsExporter interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Options holds the optional collaborators of the server.
type Options struct {
	Syncer      Syncer          // nil disables POST /api/v1/sync
	Metrics     MetricsExporter // nil disables instrumentation
	MetricsPath string
	Version     string // reported as info.version in /openapi.json
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server    *http.Server
	router    *mux.Router
	handler   http.Handler
	resources input.ResourceService
	health    input.HealthChecker
	opts      Options
	logger    *slog.Logger
	config    config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	resources input.ResourceService,
	health input.HealthChecker,
	opts Options,
	logger *slog.Logger,
) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	s := &Server{
		resources: resources,
		health:    health,
		opts:      opts,
		logger:    logger,
		config:    cfg,
	}

	s.router = s.setupRoutes()
	s.handler = s.router
	if cfg.CORS.Enabled() {
		s.handler = s.withCORS(s.router)
	}

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Keys may contain slashes, so the action routes are registered before
	// the catch-all resource route.
	api.HandleFunc("/resources", s.handleListResources).Methods(http.MethodGet)
	api.HandleFunc("/resources/{key:.+}/download", s.handleStartDownload).Methods(http.MethodPost)
	api.HandleFunc("/resources/{key:.+}/cancel", s.handleStopDownload).Methods(http.MethodPost)
	api.HandleFunc("/resources/{key:.+}/update", s.handleUpdate).Methods(http.MethodPost)
	api.HandleFunc("/resources/{key:.+}/files", s.handleDeleteFiles).Methods(http.MethodDelete)
	api.HandleFunc("/resources/{key:.+}", s.handleGetResource).Methods(http.MethodGet)

	api.HandleFunc("/update", s.handleUpdateAll).Methods(http.MethodPost)

	if s.opts.Syncer != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	if s.opts.Metrics != nil {
		r.Handle(s.opts.MetricsPath, s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

// Handler returns the root handler, including CORS handling when
// configured.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
