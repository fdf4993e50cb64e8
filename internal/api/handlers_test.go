package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"depthfeed/internal/book"
	"depthfeed/internal/config"
	"depthfeed/internal/fanout"
	"depthfeed/internal/metrics"
	"depthfeed/pkg/types"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.ServerConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.ServerConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.ServerConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.ServerConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://feed.example.com",
			cfg:     config.ServerConfig{AllowedOrigins: []string{"https://feed.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.ServerConfig{AllowedOrigins: []string{"https://feed.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://depthfeed.internal:8080",
			cfg:     config.ServerConfig{},
			reqHost: "depthfeed.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	return NewHandlers(
		config.ServerConfig{},
		fanout.NewHub(16, slog.Default()),
		book.NewRegistry(25),
		metrics.New(slog.Default()),
		5,
		time.Hour,
		slog.Default(),
	)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestHandleSnapshot(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	b := h.registry.Get("binance", "BTCUSDT")
	b.InitializeFromSnapshot(
		[]types.Level{{Price: 10000000000, Qty: 100000000}},
		[]types.Level{{Price: 10100000000, Qty: 100000000}},
		1,
	)

	rec := httptest.NewRecorder()
	h.HandleSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp snapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Symbols) != 1 || resp.Symbols[0] != "binance:BTCUSDT" {
		t.Fatalf("symbols = %v, want [binance:BTCUSDT]", resp.Symbols)
	}
	if len(resp.Books) != 1 || resp.Books[0].Symbol != "BTCUSDT" {
		t.Fatalf("books = %+v", resp.Books)
	}
}
