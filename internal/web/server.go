// Package web provides the HTTP server and handlers for the import UI.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/bizimport/internal/config"
	"github.com/JonMunkholm/bizimport/internal/importer"
	"github.com/JonMunkholm/bizimport/internal/web/middleware"
)

// Server is the HTTP server for the import application.
type Server struct {
	cfg      *config.Config
	defaults importer.Options
	store    *SessionStore
	limiter  *Limiter
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server that commits imports into sink.
func NewServer(cfg *config.Config, sink importer.Sink) (*Server, error) {
	defaults, err := cfg.ImportOptions()
	if err != nil {
		return nil, fmt.Errorf("import options: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		defaults: defaults,
		store: NewSessionStore(StoreConfig{
			MaxSessions: cfg.Session.MaxSessions,
			IdleTTL:     cfg.Session.IdleTTL,
			Sink:        sink,
			MaxFileSize: cfg.Import.MaxFileSize,
		}),
		limiter: NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5, "text/html", "application/json", "text/csv"))

	if origins := s.cfg.Server.CORSAllowedOrigins; len(origins) > 0 {
		s.router.Use(cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowedHeaders: []string{"Content-Type", "Accept", "X-Request-Id"},
			ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
		}).Handler)
	}

	// Security hardening
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.With(chimw.Timeout(s.cfg.Server.RequestTimeout)).Get("/sessions/{id}", s.handleSessionPage)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Event stream stays open, so it skips the request timeout
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			// Schemas and templates
			r.Get("/entities", s.handleListEntities)
			r.Get("/template/{entity}", s.handleDownloadTemplate)

			// Session lifecycle
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)

			// Workflow steps
			r.Post("/sessions/{id}/file", s.handleUploadFile)
			r.Put("/sessions/{id}/entity", s.handleSelectEntity)
			r.Put("/sessions/{id}/options", s.handleConfigure)
			r.Put("/sessions/{id}/mapping/{field}", s.handleRemap)
			r.Put("/sessions/{id}/preset", s.handleApplyPreset)
			r.Post("/sessions/{id}/verify", s.handleVerify)
			r.Post("/sessions/{id}/commit", s.handleCommit)
			r.Post("/sessions/{id}/reset", s.handleReset)
		})
	})
}

// Start begins listening for HTTP requests on the configured address.
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

// StartSweeper evicts idle sessions until ctx is cancelled.
func (s *Server) StartSweeper(ctx context.Context) {
	s.store.StartSweeper(ctx, s.cfg.Session.SweepInterval)
}

// UploadStatus reports the state of the read/commit limiter.
func (s *Server) UploadStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until in-flight reads and commits finish.
func (s *Server) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Shutdown gracefully stops the server. Open event streams are closed
// first so they do not hold the shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.store.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Content Security Policy - pages are server-rendered without scripts
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
