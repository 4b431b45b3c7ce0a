// ABOUTME: HTTP server setup and lifecycle for parley-gateway
// ABOUTME: Wires routes, auth middleware, and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/bot"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/hub"
	"github.com/2389/parley/internal/store"
)

// Config holds everything the server needs to run
type Config struct {
	Addr         string
	Store        store.Store
	Notifier     *hub.Notifier
	Responder    bot.Responder
	Dedupe       *dedupe.Cache
	Verifier     auth.TokenVerifier
	ReplyTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the parley-gateway HTTP server
type Server struct {
	store        store.Store
	notifier     *hub.Notifier
	responder    bot.Responder
	dedupe       *dedupe.Cache
	replyTimeout time.Duration
	logger       *slog.Logger

	httpServer *http.Server

	// replyCtx bounds background bot reply work; replies persist across a
	// closed client request but not across server shutdown
	replyCtx    context.Context
	replyCancel context.CancelFunc
	replies     sync.WaitGroup
}

// New creates a Server with its routes registered
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	replyTimeout := cfg.ReplyTimeout
	if replyTimeout <= 0 {
		replyTimeout = 60 * time.Second
	}

	replyCtx, replyCancel := context.WithCancel(context.Background())
	s := &Server{
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		responder:    cfg.Responder,
		dedupe:       cfg.Dedupe,
		replyTimeout: replyTimeout,
		logger:       logger.With("component", "server"),
		replyCtx:     replyCtx,
		replyCancel:  replyCancel,
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/health", s.handleHealth)

	// API endpoints - bearer token required
	authed := auth.Middleware(cfg.Verifier)
	mux.Handle("/api/session", authed(http.HandlerFunc(s.handleSession)))
	mux.Handle("/api/conversations", authed(http.HandlerFunc(s.handleConversations)))
	mux.Handle("/api/conversations/", authed(http.HandlerFunc(s.handleConversationRoutes)))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler exposes the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the HTTP server, cancels in-flight bot replies, and closes
// the notifier so streaming handlers unwind.
func (s *Server) Shutdown(ctx context.Context) error {
	s.replyCancel()
	s.notifier.Close()

	err := s.httpServer.Shutdown(ctx)

	// Wait for reply goroutines, bounded by the shutdown context
	done := make(chan struct{})
	go func() {
		s.replies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out waiting for bot replies")
	}

	return err
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}
