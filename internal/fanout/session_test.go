package fanout

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"depthfeed/internal/book"
	"depthfeed/internal/metrics"
	"depthfeed/pkg/types"
)

// newTestServer wires a Hub, a Registry, and a Collector behind a gorilla
// upgrader, mirroring how internal/api constructs a Session per inbound
// WebSocket request.
func newTestServer(t *testing.T, hub *Hub, registry *book.Registry, m *metrics.Collector, pollInterval time.Duration) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		New(hub, conn, registry, m, 5, pollInterval, slog.Default())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v map[string]interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v\ndata: %s", err, data)
	}
	return v
}

func TestSessionConnectSequence(t *testing.T) {
	reg := book.NewRegistry(25)
	b := reg.Get("binance", "BTCUSDT")
	b.InitializeFromSnapshot(
		[]types.Level{{Price: 10000000000, Qty: 100000000}},
		[]types.Level{{Price: 10100000000, Qty: 100000000}},
		1,
	)

	hub := NewHub(16, slog.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	m := metrics.New(slog.Default())
	srv := newTestServer(t, hub, reg, m, time.Hour) // poll disabled for this test
	conn := dial(t, srv)

	first := readFrame(t, conn)
	if first["type"] != "symbol_list" {
		t.Fatalf("first frame type = %v, want symbol_list", first["type"])
	}

	second := readFrame(t, conn)
	if second["type"] != "book_update" {
		t.Fatalf("second frame type = %v, want book_update", second["type"])
	}
	if second["exchange"] != "binance" || second["symbol"] != "BTCUSDT" {
		t.Errorf("book_update venue/symbol = %v/%v", second["exchange"], second["symbol"])
	}

	third := readFrame(t, conn)
	if third["type"] != "metrics" {
		t.Fatalf("third frame type = %v, want metrics", third["type"])
	}
}

func TestSessionPollSendsDirtyBooksOnce(t *testing.T) {
	reg := book.NewRegistry(25)
	b := reg.Get("binance", "BTCUSDT")
	b.InitializeFromSnapshot(
		[]types.Level{{Price: 10000000000, Qty: 100000000}},
		[]types.Level{{Price: 10100000000, Qty: 100000000}},
		1,
	)

	hub := NewHub(16, slog.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	m := metrics.New(slog.Default())
	srv := newTestServer(t, hub, reg, m, 30*time.Millisecond)
	conn := dial(t, srv)

	// Drain the connect sequence (symbol_list, book_update, metrics).
	readFrame(t, conn)
	readFrame(t, conn)
	readFrame(t, conn)

	// Apply many deltas between two poll ticks; the spec requires exactly
	// one coalesced BookUpdate frame for the interval, not one per delta.
	for i := 0; i < 1000; i++ {
		b.ApplyUpdate(
			[]types.Level{{Price: 10000000000, Qty: types.Scaled(100000000 + uint64(i))}},
			nil,
			uint64(i+2), uint64(i+2),
		)
	}

	frame := readFrame(t, conn)
	if frame["type"] != "book_update" {
		t.Fatalf("frame type = %v, want book_update", frame["type"])
	}

	// No further book_update should arrive until the book changes again.
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no further frame for an unchanged book")
	}
}
