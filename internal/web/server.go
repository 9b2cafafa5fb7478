// Package web provides the HTTP server and handlers for the consolidation UI
// and its JSON API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/JonMunkholm/datacompile/internal/config"
	"github.com/JonMunkholm/datacompile/internal/core"
	"github.com/JonMunkholm/datacompile/internal/risk"
	mw "github.com/JonMunkholm/datacompile/internal/web/middleware"
)

// Server is the HTTP server for the consolidation application.
type Server struct {
	cfg     *config.Config
	service *core.Service
	risk    *risk.Store
	router  *chi.Mux
	server  *http.Server

	uploadLimit func(http.Handler) http.Handler
}

// NewServer creates a new Server instance. riskStore may be nil, in which
// case the risk scan routes answer 503.
func NewServer(cfg *config.Config, service *core.Service, riskStore *risk.Store) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		risk:    riskStore,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(mw.SecurityHeaders(s.cfg.Security.EnableCSP))

	// Limits key on RemoteAddr, so they run after TrustedRealIP.
	if s.cfg.Rate.Enabled {
		s.router.Use(httprate.LimitByIP(s.cfg.Rate.RequestsPerMinute, time.Minute))
		if s.cfg.Rate.UploadLimit > 0 {
			s.uploadLimit = httprate.LimitByIP(s.cfg.Rate.UploadLimit, time.Minute)
		}
	}
}

// uploads wraps the upload routes in the stricter upload limit.
func (s *Server) uploads(h http.HandlerFunc) http.Handler {
	if s.uploadLimit == nil {
		return h
	}
	return s.uploadLimit(h)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Get("/dashboard", s.handleDashboard)

	// Consolidation
	s.router.Method(http.MethodPost, "/upload", s.uploads(s.handleUpload))
	s.router.Method(http.MethodPost, "/upload-mapped", s.uploads(s.handleUploadMapped))
	s.router.Post("/reset", s.handleReset)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/download", s.handleDownload)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.Security.RequireAPIKey {
			r.Use(mw.APIKeyAuth(&s.cfg.Security))
		}

		// Projects
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Delete("/projects/{name}", s.handleDeleteProject)
		r.Post("/projects/{name}/select", s.handleSelectProject)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
		r.Get("/audit-log", s.handleAuditLog)

		// Upload history
		r.Get("/uploads", s.handleListUploads)
		r.Delete("/uploads/{id}", s.handleDeleteUpload)

		// Analytics
		r.Get("/columns", s.handleColumns)
		r.Get("/data-summary", s.handleDataSummary)
		r.Get("/date-range", s.handleDateRange)
		r.Get("/dashboard-stats", s.handleDashboardStats)
		r.Get("/compare-column", s.handleCompareColumn)
		r.Get("/advanced-analysis", s.handleAdvancedAnalysis)
		r.Get("/column-stats", s.handleColumnStats)
		r.Get("/trend-line-data", s.handleTrendLine)

		// Report downloads
		r.Get("/download-comparison", s.handleDownloadComparison)
		r.Get("/download-advanced-analysis", s.handleDownloadAdvanced)
		r.Get("/download-column-stats", s.handleDownloadColumnStats)
		r.Get("/download-trend-line", s.handleDownloadTrendLine)
		r.Get("/download-filtered", s.handleDownloadFiltered)
		r.Get("/download-top10", s.handleDownloadTop10)

		// Background work and housekeeping
		r.Get("/background-tasks", s.handleListTasks)
		r.Get("/background-tasks/{id}", s.handleGetTask)
		r.Post("/clear-cache", s.handleClearCache)
		r.Get("/memory-stats", s.handleMemoryStats)

		// Risk scans
		r.Post("/risk-scan", s.handleStartRiskScan)
		r.Get("/risk-scans", s.handleListRiskScans)
		r.Get("/risk-scans/{id}/findings", s.handleRiskFindings)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
