// Depthfeed — a real-time, multi-venue cryptocurrency order book aggregator.
//
// Architecture:
//
//	main.go                 — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go        — orchestrator: wires venue connectors, registry, hub, and API server
//	connmgr/manager.go      — per-venue connection supervisor: snapshot, subscribe, stream, backoff
//	venue/*.go              — one Connector per exchange: URL/frame construction and wire parsing
//	book/book.go            — per-(venue,symbol) order book with snapshot and delta application
//	book/registry.go        — concurrent registry of every tracked book
//	metrics/collector.go    — wait-free counters, latency percentiles, resource sampling
//	fanout/hub.go           — broadcasts trades and metrics to every subscriber session
//	fanout/session.go       — per-subscriber WebSocket session: connect sequence + book polling
//	api/server.go           — subscriber-facing HTTP surface: health, snapshot, metrics, /ws
//
// Subscribers connect over WebSocket and receive a symbol list, an initial
// book snapshot per tracked market, a metrics snapshot, and then a stream of
// book/trade/metrics updates for the lifetime of the connection.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"depthfeed/internal/config"
	"depthfeed/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("DEPTHFEED_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("depthfeed started",
		"venues", cfg.Venues.Enabled,
		"symbols", cfg.Venues.TradingPairs,
		"listen_address", cfg.Server.ListenAddress,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
