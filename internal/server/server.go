// Package server is the blog's edge router: it serves the static site with
// security and caching headers, re-serves the service worker script, and
// mounts the contact endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/assets"
	"github.com/lloyd-blog/edge/internal/contact"
	"github.com/lloyd-blog/edge/internal/logging"
)

// Config holds server configuration.
type Config struct {
	Host              string
	Port              int
	AllowedOrigins    []string
	// TrustedIPHeader is non-empty when the server runs behind a proxy whose
	// forwarding headers can be believed.
	TrustedIPHeader   string
	RequestTimeout    time.Duration
	ReadHeaderTimeout time.Duration
	// WorkerScript is the asset re-served at /sw.js.
	WorkerScript string
	// NotFoundPage is the asset served for missing paths.
	NotFoundPage string
}

// Server is the edge HTTP server.
type Server struct {
	cfg        Config
	assets     assets.Origin
	contact    *contact.Handler
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server over the given asset origin. A nil contact handler
// leaves POST /contact unrouted.
func New(cfg Config, origin assets.Origin, contactHandler *contact.Handler, logger *zap.Logger) *Server {
	if cfg.WorkerScript == "" {
		cfg.WorkerScript = "/js/service-worker.js"
	}
	if cfg.NotFoundPage == "" {
		cfg.NotFoundPage = "/404.html"
	}
	s := &Server{
		cfg:     cfg,
		assets:  origin,
		contact: contactHandler,
		logger:  logger,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.cfg.TrustedIPHeader != "" {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(middleware.GetHead)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.contact != nil {
		contact.RegisterRoutes(r, s.contact)
		r.Get("/contact", s.serveAsset)
	}
	r.Get("/sw.js", s.serveWorkerScript)
	r.Handle("/*", http.HandlerFunc(s.serveAsset))

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start begins listening on the configured address. It returns nil once
// Shutdown has been called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("edge server listening", zap.String("addr", s.Addr()))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("edge server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
