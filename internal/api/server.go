package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-crawler/internal/board"
	"github.com/JakeFAU/board-crawler/internal/metrics"
	"github.com/JakeFAU/board-crawler/internal/query"
)

// Querier is the read side consumed by the handlers.
type Querier interface {
	SampleTitles(ctx context.Context, n int) ([]string, error)
	FindByTitle(ctx context.Context, title string) (board.PostView, error)
}

// Server wires HTTP handlers to the query service.
type Server struct {
	router  chi.Router
	queries Querier
	logger  *zap.Logger
}

const requestTimeout = 30 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(queries Querier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		queries: queries,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metricsMiddleware)
	r.Use(recoverMiddleware(s.logger))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/posts", func(r chi.Router) {
		r.Get("/", s.findPost)
		r.Get("/sample", s.sampleTitles)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sampleTitles(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	titles, err := s.queries.SampleTitles(r.Context(), n)
	if err != nil {
		s.logger.Error("sample titles failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to sample titles")
		return
	}
	if titles == nil {
		titles = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"titles": titles})
}

func (s *Server) findPost(w http.ResponseWriter, r *http.Request) {
	view, err := s.queries.FindByTitle(r.Context(), r.URL.Query().Get("title"))
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, view)
	case errors.Is(err, query.ErrEmptyTitle):
		s.writeError(w, http.StatusBadRequest, "title is required")
	case errors.Is(err, board.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "article not found")
	default:
		s.logger.Error("title lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
