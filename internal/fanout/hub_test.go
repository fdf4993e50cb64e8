package fanout

import (
	"log/slog"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"depthfeed/internal/book"
	"depthfeed/internal/metrics"
	"depthfeed/pkg/types"
)

func TestHubBroadcastsTradeToAllSessions(t *testing.T) {
	reg := book.NewRegistry(25)
	hub := NewHub(16, slog.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	m := metrics.New(slog.Default())
	srv := newTestServer(t, hub, reg, m, time.Hour)

	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dial(t, srv)
		// Drain the connect sequence: symbol_list, metrics (no books).
		readFrame(t, conns[i])
		readFrame(t, conns[i])
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ActiveSessions() != numClients && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ActiveSessions(); got != numClients {
		t.Fatalf("ActiveSessions() = %d, want %d", got, numClients)
	}

	hub.PublishTrade(types.Trade{
		Venue: "binance", Symbol: "BTCUSDT",
		Price: mustScaled("100.50"), Qty: mustScaled("1.0"),
		Side: types.TradeBuy, Timestamp: time.Now(),
	})

	for _, c := range conns {
		frame := readFrame(t, c)
		if frame["type"] != "trade" {
			t.Errorf("frame type = %v, want trade", frame["type"])
		}
		if frame["symbol"] != "BTCUSDT" {
			t.Errorf("symbol = %v, want BTCUSDT", frame["symbol"])
		}
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	reg := book.NewRegistry(25)
	hub := NewHub(16, slog.Default())
	stop := make(chan struct{})
	defer close(stop)
	go hub.Run(stop)

	m := metrics.New(slog.Default())
	srv := newTestServer(t, hub, reg, m, time.Hour)

	conn := dial(t, srv)
	readFrame(t, conn) // symbol_list
	readFrame(t, conn) // metrics

	deadline := time.Now().Add(2 * time.Second)
	for hub.ActiveSessions() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for hub.ActiveSessions() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions() after disconnect = %d, want 0", got)
	}
}

func mustScaled(s string) types.Scaled {
	v, err := types.ParseScaled(s)
	if err != nil {
		panic(err)
	}
	return v
}
