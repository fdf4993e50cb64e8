package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"depthfeed/internal/book"
	"depthfeed/internal/metrics"
	"depthfeed/pkg/types"
)

func symbolListMessage(symbols []string) types.SymbolListMessage {
	return types.SymbolListMessage{Type: types.MsgSymbolList, Symbols: symbols}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Session is one connected subscriber. Per §4.H, on connect it sends a
// SymbolList, a full BookUpdate for every initialized book, and the
// current Metrics snapshot; it then multiplexes three sources for the
// rest of its life: a book-poll ticker, broadcast Trade/Metrics frames
// pushed onto send by the Hub, and inbound client frames (ping/close).
//
// Grounded structurally on the teacher's api.Client (send channel,
// writePump/readPump split, ping ticker, drop-on-lag backpressure); the
// poll-and-coalesce loop is this repo's own addition since nothing in the
// teacher's single-snapshot dashboard model needed per-entity dirty
// tracking.
type Session struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	registry *book.Registry
	metrics  *metrics.Collector

	displayDepth int
	pollInterval time.Duration

	// lastSent tracks, per "venue:symbol" key, the last_update_id already
	// delivered to this subscriber, so the poll loop never repeats an
	// unchanged book (§8: no two consecutive BookUpdate frames for the
	// same book with the same last_update_id).
	lastSent map[string]uint64

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// New registers a new session with the hub, sends the initial connect
// sequence, and starts its write/read/poll goroutines.
func New(hub *Hub, conn *websocket.Conn, registry *book.Registry, m *metrics.Collector, displayDepth int, pollInterval time.Duration, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		registry:     registry,
		metrics:      m,
		displayDepth: displayDepth,
		pollInterval: pollInterval,
		lastSent:     make(map[string]uint64),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("component", "fanout-session"),
	}

	hub.register <- s
	s.sendConnectSequence()

	go s.writePump()
	go s.readPump()
	go s.pollLoop()

	return s
}

// sendConnectSequence implements §4.H's three-step connect handshake:
// symbol list, then a full book for every initialized book, then the
// current metrics snapshot.
func (s *Session) sendConnectSequence() {
	books := s.registry.All()

	symbols := make([]string, 0, len(books))
	for _, b := range books {
		symbols = append(symbols, book.Key(b.Venue(), b.Symbol()))
	}
	s.enqueueJSON(symbolListMessage(symbols))

	for _, b := range books {
		if !b.IsInitialized() {
			continue
		}
		msg := b.ToClientMessage(s.displayDepth)
		s.enqueueJSON(msg)
		s.lastSent[book.Key(b.Venue(), b.Symbol())] = msg.LastUpdateID
	}

	s.enqueueJSON(s.metrics.Snapshot())
}

// pollLoop is the book side of §4.H's multiplex: every pollInterval it
// scans the registry for books whose last_update_id advanced since the
// last send to this subscriber, coalescing any number of intervening
// deltas into a single frame.
func (s *Session) pollLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sendDirtyBooks()
		}
	}
}

func (s *Session) sendDirtyBooks() {
	for _, b := range s.registry.All() {
		if !b.IsInitialized() {
			continue
		}
		key := book.Key(b.Venue(), b.Symbol())
		id := b.LastUpdateID()
		if prev, ok := s.lastSent[key]; ok && prev == id {
			continue
		}
		msg := b.ToClientMessage(s.displayDepth)
		s.enqueueJSON(msg)
		s.lastSent[key] = id
	}
}

// enqueueJSON serializes v and drops it on a full send buffer rather than
// blocking the caller — the same backpressure policy the hub applies to
// broadcast frames.
func (s *Session) enqueueJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal frame", "error", err)
		return
	}
	select {
	case s.send <- data:
	default:
		s.logger.Warn("session send buffer full, dropping frame")
	}
}

// writePump drains send to the socket and keeps the connection alive with
// periodic pings. Returning here tears the whole session down via cleanup.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.cleanup()
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// readPump handles inbound client frames. Subscribers are read-only
// (symbol/book/trade/metrics data flows one way); inbound pings are answered
// by gorilla's default ping handler, the pong handler wired below extends
// the read deadline on replies to our own pings, and anything else is
// ignored per §4.H's "handle ping/close/ignore".
func (s *Session) readPump() {
	defer s.cleanup()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("session websocket error", "error", err)
			}
			return
		}
	}
}

// cleanup unregisters the session from the hub and stops the poll loop.
// Safe to call more than once (e.g. from both writePump and readPump
// returning in close succession): cancel and the unregister send are both
// idempotent, and send is never closed so no goroutine can race a send
// against a close.
func (s *Session) cleanup() {
	s.cancel()
	select {
	case s.hub.unregister <- s:
	case <-time.After(time.Second):
		// Hub loop has already shut down (process exit); nothing to do.
	}
	s.conn.Close()
}
