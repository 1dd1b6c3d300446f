// Package server exposes the runtime over HTTP: an async shim that turns
// chat, embed, and index requests into broker jobs, plus synchronous chat,
// vector search, run history, and health endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/queue"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/telemetry"
	"github.com/stxkxs/troupe/internal/vector"
)

// Searcher answers vector search queries. Nil disables the search endpoint.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]vector.Result, error)
}

// Server is the troupe HTTP server.
type Server struct {
	cfg    *config.Config
	broker queue.Broker
	chat   *queue.ChatHandler
	search Searcher
	runs   *state.Manager
	logger *telemetry.Logger
}

// New creates a server. search and runs may be nil; their endpoints then
// report the capability as unavailable.
func New(cfg *config.Config, broker queue.Broker, chat *queue.ChatHandler, search Searcher, runs *state.Manager, logger *telemetry.Logger) *Server {
	return &Server{
		cfg:    cfg,
		broker: broker,
		chat:   chat,
		search: search,
		runs:   runs,
		logger: logger,
	}
}

// Handler returns the server's routes wrapped in its middleware, for callers
// that manage their own listener.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.setupRoutes())
}

// Start runs the HTTP server and blocks until the context is cancelled or
// the listener fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Route net/http's own error lines through the structured logger.
		ErrorLog: slog.NewLogLogger(s.logger.Slog().Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting troupe API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Async job shim
	mux.HandleFunc("POST /chat/async", s.handleChatAsync)
	mux.HandleFunc("GET /chat/jobs/{id}", s.handleChatJob)
	mux.HandleFunc("POST /api/embed/async", s.handleEmbedAsync)
	mux.HandleFunc("POST /api/index/async", s.handleIndexAsync)

	// Synchronous chat
	mux.HandleFunc("POST /api/chat", s.handleChat)

	// Vector search
	mux.HandleFunc("GET /api/search", s.handleSearch)

	// Run history
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)

	return mux
}

// corsMiddleware adds CORS headers for development mode.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
