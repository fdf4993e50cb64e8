// Package engine is the central orchestrator of the order book aggregator.
//
// It wires together all subsystems:
//
//  1. A book.Registry shared by every venue connector and every subscriber
//     session.
//  2. One connmgr.Manager per enabled venue, each supervising its own
//     WebSocket connection and feeding the registry and the trade hub.
//  3. A metrics.Collector fed by every connmgr.Manager, exposed both over
//     Prometheus and broadcast periodically to subscribers.
//  4. A fanout.Hub broadcasting trades and metrics, and an api.Server
//     accepting subscriber WebSocket and REST connections.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"depthfeed/internal/api"
	"depthfeed/internal/book"
	"depthfeed/internal/config"
	"depthfeed/internal/connmgr"
	"depthfeed/internal/fanout"
	"depthfeed/internal/metrics"
	"depthfeed/internal/venue"
)

// metricsBroadcastInterval governs how often the hub pushes a fresh
// MetricsMessage to every connected subscriber, independent of each
// session's own book poll cadence.
const metricsBroadcastInterval = time.Second

// connectionsSampleInterval governs how often the collector's active
// subscriber gauge is refreshed from the hub's live session count.
const connectionsSampleInterval = 2 * time.Second

// Engine orchestrates all components of the order book aggregator. It owns
// the lifecycle of every goroutine: one connmgr.Manager per venue, the
// metrics background loops, and the subscriber-facing API server.
type Engine struct {
	cfg       config.Config
	registry  *book.Registry
	collector *metrics.Collector
	prom      *metrics.PromExporter
	hub       *fanout.Hub
	server    *api.Server
	managers  []*connmgr.Manager
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem from cfg. An unknown venue name in
// cfg.Venues.Enabled is a configuration error, returned immediately rather
// than silently skipped.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	registry := book.NewRegistry(cfg.Book.OrderbookDepth)
	collector := metrics.New(logger)
	prom := metrics.NewPromExporter(collector)
	hub := fanout.NewHub(cfg.Fanout.BroadcastCapacity, logger)

	managers := make([]*connmgr.Manager, 0, len(cfg.Venues.Enabled))
	for _, name := range cfg.Venues.Enabled {
		connector, err := newConnector(name)
		if err != nil {
			return nil, err
		}
		mgr := connmgr.New(
			connector,
			cfg.Venues.TradingPairs,
			registry,
			hub,
			collector,
			cfg.Venues.ReconnectBackoff,
			cfg.Venues.SnapshotDepthLimit,
			logger,
		)
		managers = append(managers, mgr)
	}

	server := api.NewServer(
		cfg.Server,
		hub,
		registry,
		collector,
		prom,
		cfg.Book.DisplayDepth,
		cfg.Fanout.BookPollInterval,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		registry:  registry,
		collector: collector,
		prom:      prom,
		hub:       hub,
		server:    server,
		managers:  managers,
		logger:    logger.With("component", "engine"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// newConnector builds the venue.Connector named by cfg.Venues.Enabled.
func newConnector(name string) (venue.Connector, error) {
	switch name {
	case "binance":
		return venue.NewBinance(), nil
	case "bybit":
		return venue.NewBybit(), nil
	case "coinbase":
		return venue.NewCoinbase(), nil
	case "kraken":
		return venue.NewKraken(), nil
	default:
		return nil, fmt.Errorf("unknown venue %q", name)
	}
}

// Start launches the hub, every venue supervisor, the metrics background
// loops, and the subscriber-facing HTTP server. The HTTP server runs on the
// calling goroutine's behalf via its own internal ListenAndServe goroutine,
// started here and reaped in Stop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.hub.Run(e.ctx.Done())
	}()

	for _, mgr := range e.managers {
		mgr := mgr
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			mgr.Run(e.ctx)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.collector.RunPercentileRefresher(e.ctx.Done(), e.cfg.Metrics.PercentileRefresh)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.collector.RunResourceSampler(e.ctx, e.cfg.Metrics.SystemSample)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.broadcastMetrics()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sampleConnections()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-time.After(200 * time.Millisecond):
		// server didn't fail fast; assume it bound successfully and keep
		// running in the background goroutine above.
	}

	return nil
}

// broadcastMetrics periodically pushes a fresh snapshot to every subscriber.
func (e *Engine) broadcastMetrics() {
	ticker := time.NewTicker(metricsBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.hub.PublishMetrics(e.collector.ComputeSnapshot())
		}
	}
}

// sampleConnections refreshes the collector's active-subscriber gauge from
// the hub's live session count.
func (e *Engine) sampleConnections() {
	ticker := time.NewTicker(connectionsSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.collector.SetConnections(int32(e.hub.ActiveSessions()))
		}
	}
}

// Stop gracefully shuts everything down: stops accepting new HTTP
// connections, cancels every background goroutine, and waits for them to
// exit.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	if err := e.server.Stop(); err != nil {
		e.logger.Error("api server shutdown error", "error", err)
	}

	e.cancel()
	e.wg.Wait()

	e.logger.Info("shutdown complete")
}
