package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/hijabist/internal/metrics"
	"github.com/kozaktomas/hijabist/internal/profile"
	"github.com/kozaktomas/hijabist/internal/web/handlers"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	authHandler := handlers.NewAuthHandler(s.workspaces)
	analysisHandler := handlers.NewAnalysisHandler(s.config, s.workspaces, s.jobManager)
	resultsHandler := handlers.NewResultsHandler(s.config, s.workspaces)
	profileHandler := handlers.NewProfileHandler(s.workspaces, profile.NewCache(s.deps.Analyses, s.deps.Profiles))
	catalogHandler := handlers.NewCatalogHandler(s.config)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Public reference data
		r.Get("/health", handlers.HealthCheck)
		r.Get("/palettes", catalogHandler.Palettes)
		r.Get("/face-shapes", catalogHandler.FaceShapes)
		if s.deps.Gatherer != nil {
			r.Handle("/metrics", metrics.Handler(s.deps.Gatherer))
		}

		// Everything else belongs to a visitor; the session is created on demand.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.sessionManager))

			// Auth
			r.With(s.rateLimiter.Middleware()).Post("/auth/login", authHandler.Login)
			r.With(s.rateLimiter.Middleware()).Post("/auth/register", authHandler.Register)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/status", authHandler.Status)

			// Analysis flow
			r.Get("/analysis", analysisHandler.Get)
			r.Post("/analysis/upload", analysisHandler.Upload)
			r.With(s.rateLimiter.Middleware()).Post("/analysis/camera", analysisHandler.OpenCamera)
			r.With(s.rateLimiter.Middleware()).Post("/analysis/camera/capture", analysisHandler.Capture)
			r.Delete("/analysis/camera", analysisHandler.CloseCamera)
			r.Delete("/analysis/image", analysisHandler.RemoveImage)
			r.With(s.rateLimiter.Middleware()).Post("/analysis/start", analysisHandler.Start)
			r.Get("/analysis/jobs/{jobId}", analysisHandler.JobStatus)
			r.Get("/analysis/jobs/{jobId}/events", analysisHandler.JobEvents)
			r.Delete("/analysis/jobs/{jobId}", analysisHandler.CancelJob)
			r.Post("/analysis/retry", analysisHandler.Retry)
			r.Post("/analysis/reset", analysisHandler.Reset)
			r.Get("/previews/{id}", analysisHandler.Preview)

			// Results
			r.Get("/results", resultsHandler.Get)
			r.Post("/results/save", resultsHandler.Save)
			r.Post("/results/share", resultsHandler.Share)

			// Profile
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(s.sessionManager))
				r.With(s.rateLimiter.Middleware()).Get("/profile/last-analysis", profileHandler.LastAnalysis)
				r.Get("/profile/analyses", profileHandler.Analyses)
			})
		})
	})
}
