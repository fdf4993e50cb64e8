// Package connmgr supervises one long-lived connection per venue (§4.F):
// it fetches a REST snapshot where the connector needs one, dials the
// venue's WebSocket, sends subscription frames, streams parsed events into
// the book registry and trade broadcaster, and restarts with a backoff on
// any error or close. Books are never cleared on reconnect — only
// re-initialized by the next snapshot — matching §4.F's explicit note.
package connmgr

import (
	"context"
	"log/slog"
	"time"

	"depthfeed/internal/book"
	"depthfeed/internal/metrics"
	"depthfeed/internal/venue"
	"depthfeed/pkg/types"
)

// state names the supervisor's position in the §4.F state machine, used
// only for logging/observability — the loop itself is driven by plain
// control flow, not a state variable.
type state string

const (
	stateInitializing state = "initializing"
	stateSnapshot     state = "snapshot_ready"
	stateSubscribing  state = "subscribing"
	stateStreaming    state = "streaming"
	stateBackoff      state = "backoff"
)

// TradeSink receives normalized trades for broadcast to subscribers.
type TradeSink interface {
	PublishTrade(types.Trade)
}

// Manager supervises one venue's connection for a fixed set of symbols.
type Manager struct {
	connector venue.Connector
	symbols   []string
	registry  *book.Registry
	trades    TradeSink
	metrics   *metrics.Collector
	backoff   time.Duration
	depth     int
	logger    *slog.Logger
}

// New builds a supervisor for one venue. depth is the REST snapshot depth
// limit requested from venues that originate their book over REST.
func New(connector venue.Connector, symbols []string, registry *book.Registry, trades TradeSink, m *metrics.Collector, backoff time.Duration, depth int, logger *slog.Logger) *Manager {
	return &Manager{
		connector: connector,
		symbols:   symbols,
		registry:  registry,
		trades:    trades,
		metrics:   m,
		backoff:   backoff,
		depth:     depth,
		logger:    logger.With("component", "connmgr", "venue", connector.Name()),
	}
}

// Run drives the forever-retrying supervisor loop until ctx is cancelled.
// Each iteration is one full pass through Initializing → Streaming →
// Backoff; an error or closed connection at any point falls through to
// the backoff sleep and restarts.
func (m *Manager) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.runOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("connection cycle ended", "error", err, "state", stateBackoff)
			m.metrics.RecordReconnect()
		}

		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.backoff):
		}
	}
}

// runOnce executes one full Initializing→Streaming pass. It returns nil
// only if ctx was cancelled mid-stream; any connection error or close
// returns a non-nil error so the caller backs off and retries.
func (m *Manager) runOnce(ctx context.Context) error {
	m.logger.Debug("state transition", "state", stateInitializing)
	if err := m.initializeFromREST(ctx); err != nil {
		m.logger.Debug("rest snapshot unavailable, continuing to stream init", "error", err)
	} else {
		m.logger.Debug("state transition", "state", stateSnapshot)
	}

	m.logger.Debug("state transition", "state", stateSubscribing)
	url := m.connector.BuildURL(m.symbols)
	conn, err := venue.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, frame := range m.connector.SubscriptionFrames(m.symbols) {
		if err := conn.WriteText(frame); err != nil {
			return err
		}
	}

	m.logger.Info("state transition", "state", stateStreaming)
	return m.stream(ctx, conn)
}

// initializeFromREST seeds every symbol's book via the connector's REST
// snapshot, for venues that originate their book out-of-band (only
// Binance in this pack; every other connector's FetchSnapshot returns
// (nil, nil) and this is a no-op per symbol).
func (m *Manager) initializeFromREST(ctx context.Context) error {
	var firstErr error
	for _, symbol := range m.symbols {
		snap, err := m.connector.FetchSnapshot(ctx, symbol, m.depth)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if snap == nil {
			continue
		}
		b := m.registry.Get(m.connector.Name(), symbol)
		b.InitializeFromSnapshot(snap.Bids, snap.Asks, snap.LastUpdateID)
		m.metrics.RecordUpdate()
		m.metrics.Track(book.Key(m.connector.Name(), symbol))
	}
	return firstErr
}

// stream runs the read loop: every inbound frame is timestamped and
// byte-counted into metrics, parsed, and applied to the registry or
// published as a trade. Parse errors on individual frames are recoverable
// per §7 and never terminate the connection; only a read error does.
func (m *Manager) stream(ctx context.Context, conn *venue.Conn) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		receivedAt := time.Now()
		m.metrics.RecordMessage(len(raw))

		evt, err := m.connector.Parse(raw)
		if err != nil {
			m.logger.Debug("malformed message", "error", err, "raw", previewJSON(raw))
			continue
		}
		if evt == nil {
			continue
		}

		switch evt.Kind {
		case types.EventDepthUpdate:
			m.applyDepth(evt.Depth, receivedAt)
		case types.EventTrade:
			m.trades.PublishTrade(evt.Trade)
			m.metrics.RecordTrade()
			m.metrics.RecordSymbolTrade(book.Key(evt.Trade.Venue, evt.Trade.Symbol))
		}
	}
}

// applyDepth routes one normalized depth update into the registry,
// treating a snapshot event as a full reset per §4.C's "snapshot receipt
// during a delta stream is a full reset" requirement, and logging a
// crossed-book condition at warn per §7 without forcing a resync.
func (m *Manager) applyDepth(d types.DepthUpdate, receivedAt time.Time) {
	key := book.Key(d.Venue, d.Symbol)
	b := m.registry.Get(d.Venue, d.Symbol)
	m.metrics.Track(key)

	changed := false
	if d.Snapshot {
		b.InitializeFromSnapshot(d.Bids, d.Asks, d.FinalUpdateID)
		changed = true
	} else {
		changed = b.ApplyUpdate(d.Bids, d.Asks, d.FirstUpdateID, d.FinalUpdateID)
	}

	latencyUs := uint64(time.Since(receivedAt).Microseconds())
	if changed {
		m.metrics.RecordUpdate()
		m.metrics.RecordSymbolUpdate(key, latencyUs)
	}
	m.metrics.RecordLatency(latencyUs)

	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok {
			if bid >= ask {
				m.logger.Warn("crossed book", "venue", d.Venue, "symbol", d.Symbol, "best_bid", bid, "best_ask", ask)
			}
			if _, spreadPercent, ok := b.Spread(); ok {
				m.metrics.RecordSymbolSpread(key, spreadPercent)
			}
		}
	}
}

// previewJSON trims a raw frame to a short prefix for debug logging,
// avoiding a multi-kilobyte log line for a single malformed message.
func previewJSON(raw []byte) string {
	const max = 200
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "…"
}
