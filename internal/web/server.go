// Package web serves the hijab analysis flow as a JSON/SSE API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/metrics"
	"github.com/kozaktomas/hijabist/internal/profile"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/kozaktomas/hijabist/internal/store"
	"github.com/kozaktomas/hijabist/internal/web/handlers"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the collaborators of the server.
type Deps struct {
	Predictor   analysis.Predictor
	Auth        session.Authenticator
	Profiles    profile.ProfileReader // nil disables the remote profile lookup
	Analyses    store.AnalysisStore
	SessionRepo middleware.SessionRepository // nil keeps sessions in memory
	Camera      media.Camera                 // nil when no camera is configured
	Metrics     metrics.Recorder
	Gatherer    prometheus.Gatherer // nil disables /metrics
}

// Server represents the web server
type Server struct {
	config         *config.Config
	deps           Deps
	router         *chi.Mux
	httpServer     *http.Server
	jobManager     *handlers.JobManager
	sessionManager *middleware.SessionManager
	workspaces     *handlers.WorkspaceManager
	rateLimiter    *middleware.RateLimiter
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}

	sessionManager := middleware.NewSessionManager(cfg.Web.SessionSecret, deps.SessionRepo)
	workspaces := handlers.NewWorkspaceManager(&handlers.WorkspaceDeps{
		Config:    cfg,
		Predictor: deps.Predictor,
		Auth:      deps.Auth,
		Analyses:  deps.Analyses,
		Camera:    deps.Camera,
		Metrics:   deps.Metrics,
		Sessions:  sessionManager,
	}, media.NewPreviewRegistry(handlers.PreviewPrefix))

	s := &Server{
		config:         cfg,
		deps:           deps,
		router:         r,
		jobManager:     handlers.NewJobManager(),
		sessionManager: sessionManager,
		workspaces:     workspaces,
		rateLimiter:    middleware.NewRateLimiter(cfg.Web.RateLimit, cfg.Web.RateBurst, time.Minute),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(append([]string{cfg.Web.PublicURL}, cfg.Web.AllowedOrigins...)))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logger.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down web server")

	s.sessionManager.Stop()
	s.rateLimiter.Stop()
	s.workspaces.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
