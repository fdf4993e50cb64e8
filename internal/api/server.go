// Package api exposes the subscriber-facing HTTP surface: a health check,
// a one-shot REST snapshot, a Prometheus exposition endpoint, and the /ws
// upgrade that hands each connection off to internal/fanout. Grounded
// structurally on the teacher's internal/api/server.go (mux wiring,
// graceful-shutdown-with-timeout), retargeted from a trading dashboard to
// the book/trade/metrics surface this spec defines.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"depthfeed/internal/book"
	"depthfeed/internal/config"
	"depthfeed/internal/fanout"
	"depthfeed/internal/metrics"
)

// Server runs the subscriber-facing HTTP/WebSocket API.
type Server struct {
	cfg      config.ServerConfig
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the HTTP mux: /health, /api/snapshot, /metrics, /ws.
func NewServer(
	cfg config.ServerConfig,
	hub *fanout.Hub,
	registry *book.Registry,
	collector *metrics.Collector,
	prom *metrics.PromExporter,
	displayDepth int,
	bookPollInterval time.Duration,
	logger *slog.Logger,
) *Server {
	handlers := NewHandlers(cfg, hub, registry, collector, displayDepth, bookPollInterval, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	mux.Handle("/metrics", prom.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start blocks serving HTTP until Stop is called; the hub is run by the
// caller (internal/engine), not here. Per §7,
// a failure to bind the listening socket is this system's only fatal
// error class.
func (s *Server) Start() error {
	s.logger.Info("subscriber server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down within a bounded timeout.
func (s *Server) Stop() error {
	s.logger.Info("stopping subscriber server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
