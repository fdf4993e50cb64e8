// Package fanout implements the subscriber-facing broadcast path of §4.H:
// a single hub distributes Trade and Metrics records to every connected
// session, and each session separately polls the book registry at a fixed
// cadence to push only the books that changed since its last send. Book
// updates are never broadcast — they are pulled per-session, per spec.
package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"

	"depthfeed/pkg/types"
)

// Hub owns the set of connected sessions and the single broadcast channel
// that carries Trade and Metrics records to all of them. Grounded on the
// teacher's WebSocket dashboard Hub (register/unregister/broadcast
// channels, one send buffer per client, drop-on-full backpressure),
// retargeted from portfolio events to market-data events.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	broadcast  chan []byte
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub with the given broadcast channel capacity
// (fanout.broadcast_capacity, default 16384 per §6).
func NewHub(capacity int, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan []byte, capacity),
		logger:     logger.With("component", "fanout-hub"),
	}
}

// Run drives the hub's register/unregister/broadcast loop. Meant to run on
// its own goroutine for the process lifetime.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			count := len(h.sessions)
			h.mu.Unlock()
			h.logger.Debug("session registered", "count", count)

		case s := <-h.unregister:
			h.mu.Lock()
			delete(h.sessions, s)
			count := len(h.sessions)
			h.mu.Unlock()
			h.logger.Debug("session unregistered", "count", count)

		case data := <-h.broadcast:
			h.mu.RLock()
			for s := range h.sessions {
				select {
				case s.send <- data:
				default:
					// Session can't keep up; the session stays connected
					// and only this frame is dropped for it. Per §4.H,
					// trades/metrics are lossy by contract — we don't
					// replay history.
					h.logger.Warn("session send buffer full, dropping frame")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ActiveSessions reports the number of currently connected subscribers,
// surfaced on the Metrics snapshot's active_connections field.
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// PublishTrade broadcasts a trade print to every connected subscriber.
func (h *Hub) PublishTrade(t types.Trade) {
	side := "buy"
	if t.Side == types.TradeSell {
		side = "sell"
	}
	h.broadcastJSON(types.TradeMessage{
		Type:      types.MsgTrade,
		Exchange:  t.Venue,
		Symbol:    t.Symbol,
		Price:     t.Price.ToDecimal(),
		Qty:       t.Qty.ToDecimal(),
		Side:      side,
		Timestamp: t.Timestamp.UnixMilli(),
	})
}

// PublishMetrics broadcasts a metrics snapshot to every connected subscriber.
func (h *Hub) PublishMetrics(m types.MetricsMessage) {
	h.broadcastJSON(m)
}

func (h *Hub) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}
