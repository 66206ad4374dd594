package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gosuda/floe/internal/config"
	"github.com/gosuda/floe/internal/server/middleware"
)

// Verifier authenticates a webhook request from its signature headers.
type Verifier interface {
	Verify(timestamp string, body []byte, signatureHex string) bool
}

// Dispatcher runs an authenticated interaction payload and returns the
// serialized synchronous response.
type Dispatcher interface {
	Dispatch(ctx context.Context, body []byte) ([]byte, error)
}

// Server is the HTTP server that exposes the interaction webhook.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	verifier   Verifier
	dispatcher Dispatcher
}

// New creates a Server with all routes wired. ctx bounds the lifetime of
// background middleware state such as the rate limiter cleanup.
func New(ctx context.Context, cfg *config.Config, verifier Verifier, dispatcher Dispatcher) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)

	s := &Server{
		router:     router,
		verifier:   verifier,
		dispatcher: dispatcher,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
		r.Post("/interactions", s.handleInteraction)
	})

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
