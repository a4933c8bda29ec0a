// Package api provides the HTTP boundary for InterviewBot.
//
// It exposes the Twilio inbound-message webhook, a liveness endpoint, and
// read-only admin endpoints over registered founders and their archived
// conversations.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/FounderLoop/interviewbot/internal/flow"
	"github.com/FounderLoop/interviewbot/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server configuration constants
const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds slow-header clients.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP routes to the message router and store.
type Server struct {
	router *chi.Mux
	addr   string
	flow   *flow.Router
	store  store.Store
}

// NewServer creates the API server around the message router and store.
func NewServer(flowRouter *flow.Router, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		addr:   cfg.Addr,
		flow:   flowRouter,
		store:  st,
	}

	router.Get("/health", s.healthHandler)
	router.Post("/message", s.messageHandler)
	router.Get("/users", s.usersHandler)
	router.Get("/users/{phone}/conversations", s.conversationsHandler)

	return s
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the route tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
