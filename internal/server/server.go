// Package server provides the upload form and the HTTP API for card extraction.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/cardex/internal/config"
	"github.com/hyperjump/cardex/internal/pipeline"
	"github.com/hyperjump/cardex/internal/storage"
	"go.uber.org/zap"
)

// requestTimeout bounds one request, covering both sides of a run.
const requestTimeout = 3 * time.Minute

// Runner executes one extraction run.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Outcome, error)
}

// Server is the HTTP server for the card processor.
type Server struct {
	runner Runner
	runs   storage.RunLog
	config *config.Config
	logger *zap.Logger
	pages  pages
	server *http.Server
}

// NewServer creates a server with the given dependencies. runs may be nil,
// in which case the run log endpoints answer 501.
func NewServer(runner Runner, runs storage.RunLog, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	p, err := parsePages()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		runner: runner,
		runs:   runs,
		config: cfg,
		logger: logger,
		pages:  p,
	}, nil
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/", s.handleIndex)
	r.Post("/process", s.handleProcess)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Post("/extract", s.handleExtract)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		}()
		next.ServeHTTP(ww, r)
	})
}
