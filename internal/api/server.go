// Package api serves the HTTP control API of the orchestrator: engine start/stop,
// path management, entity queries, action requests, a websocket status feed and
// Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/udisondev/autopilot/internal/metrics"
	"github.com/udisondev/autopilot/internal/orchestrator"
)

const shutdownTimeout = 5 * time.Second

// Deps holds what the server needs. Metrics is optional.
type Deps struct {
	Orchestrator   *orchestrator.Orchestrator
	Metrics        *metrics.Metrics
	Addr           string
	StatusInterval time.Duration
}

// Server is the control API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	metrics        *metrics.Metrics
	addr           string
	statusInterval time.Duration
	hub            *Hub
	handler        http.Handler
}

// New creates a server. It does not listen until Run.
func New(d Deps) (*Server, error) {
	if d.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if d.StatusInterval <= 0 {
		d.StatusInterval = time.Second
	}

	s := &Server{
		orch:           d.Orchestrator,
		metrics:        d.Metrics,
		addr:           d.Addr,
		statusInterval: d.StatusInterval,
		hub:            NewHub(),
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run listens on the configured address and serves until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx, s.statusInterval, func() any { return toStatus(s.orch.Status()) })

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control api listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving control api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control api: %w", err)
	}
	slog.Info("control api stopped")
	return nil
}
