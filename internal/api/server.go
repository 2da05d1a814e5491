package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	headerCallerID   = "X-Caller-Id"
	headerAdminToken = "X-Admin-Token"
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router     *chi.Mux
	engine     *engine.Engine
	store      store.Store
	adminToken string
	logger     *slog.Logger
	addr       string
}

// NewServer creates and configures a new HTTP server. Callers presenting
// adminToken in X-Admin-Token may cancel any execution; an empty token
// disables administrative access.
func NewServer(addr string, eng *engine.Engine, st store.Store, adminToken string, logger *slog.Logger) *Server {
	srv := &Server{
		router:     chi.NewRouter(),
		engine:     eng,
		store:      st,
		adminToken: adminToken,
		logger:     logger,
		addr:       addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", headerCallerID, headerAdminToken},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/step-kinds", s.handleListStepKinds)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Get("/v1/history", s.handleListHistory)

	s.router.Route("/v1/workflows", func(r chi.Router) {
		r.Post("/", s.handleRegisterWorkflow)
		r.Get("/", s.handleListWorkflows)
		r.Get("/{id}", s.handleGetWorkflow)
		r.Post("/{id}/executions", s.handleStartExecution)
	})

	s.router.Route("/v1/executions", func(r chi.Router) {
		r.Get("/", s.handleListExecutions)
		r.Get("/{id}", s.handleGetExecution)
		r.Delete("/{id}", s.handleCancelExecution)
		r.Get("/{id}/events", s.handleStreamEvents)
		r.Get("/{id}/history", s.handleGetHistory)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx).Error())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
