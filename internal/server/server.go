// Package server exposes the analysis core over HTTP: task submission
// and lifecycle, quote/history lookups, runtime configuration, and the
// direct expert-panel path (spec.md §6).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/configsvc"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/events"
	"github.com/stockpanel/sentinel/internal/panel"
	"github.com/stockpanel/sentinel/internal/queue"
	"github.com/stockpanel/sentinel/internal/reportstore"
)

// ModelsOf returns the currently configured expert-panel models for a
// report type, used by both the orchestrator and the direct
// expert-panel HTTP path.
type ModelsOf func(domain.ReportType) []domain.ModelConfig

// Config wires every component a handler needs. Server itself holds no
// business logic beyond routing, request decoding and error mapping.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool

	Queue   *queue.Manager
	Bus     *events.Bus
	Cascade *cascade.Manager
	Reports *reportstore.Store
	Configs *configsvc.Service
	Panel   *panel.Runner
	Models  ModelsOf
}

// Server is the chi-routed HTTP server for this analysis core.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New builds a Server and registers every route. Start must be called
// to begin serving.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "http_server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(chimw.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !s.cfg.DevMode {
		s.router.Use(chimw.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		NewAnalysisHandlers(s.cfg.Queue, s.cfg.Bus, s.cfg.Reports, s.log).RegisterRoutes(r)
		NewStocksHandlers(s.cfg.Cascade, s.cfg.Reports, s.log).RegisterRoutes(r)
		NewConfigHandlers(s.cfg.Configs, s.log).RegisterRoutes(r)
		NewPanelHandlers(s.cfg.Panel, s.cfg.Models, s.log).RegisterRoutes(r)
	})
}

// Start blocks, serving until the listener errors or Shutdown closes it.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
