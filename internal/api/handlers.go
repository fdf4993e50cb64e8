package api

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"depthfeed/internal/book"
	"depthfeed/internal/config"
	"depthfeed/internal/fanout"
	"depthfeed/internal/metrics"
	"depthfeed/pkg/types"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	cfg              config.ServerConfig
	hub              *fanout.Hub
	registry         *book.Registry
	collector        *metrics.Collector
	displayDepth     int
	bookPollInterval time.Duration
	logger           *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	cfg config.ServerConfig,
	hub *fanout.Hub,
	registry *book.Registry,
	collector *metrics.Collector,
	displayDepth int,
	bookPollInterval time.Duration,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		cfg:              cfg,
		hub:              hub,
		registry:         registry,
		collector:        collector,
		displayDepth:     displayDepth,
		bookPollInterval: bookPollInterval,
		logger:           logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// snapshotResponse is the one-shot REST equivalent of a session's connect
// sequence: every tracked symbol, every initialized book at the server's
// display depth, and the current metrics snapshot.
type snapshotResponse struct {
	Symbols []string                  `json:"symbols"`
	Books   []types.BookUpdateMessage `json:"books"`
	Metrics types.MetricsMessage      `json:"metrics"`
}

// HandleSnapshot returns the current aggregator state without opening a
// WebSocket, for clients that just want a point-in-time read.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	books := h.registry.All()
	resp := snapshotResponse{
		Symbols: make([]string, 0, len(books)),
		Books:   make([]types.BookUpdateMessage, 0, len(books)),
		Metrics: h.collector.Snapshot(),
	}
	for _, b := range books {
		resp.Symbols = append(resp.Symbols, book.Key(b.Venue(), b.Symbol()))
		if b.IsInitialized() {
			resp.Books = append(resp.Books, b.ToClientMessage(h.displayDepth))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleWebSocket upgrades the connection and hands it to a new fanout
// session.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	fanout.New(h.hub, conn, h.registry, h.collector, h.displayDepth, h.bookPollInterval, h.logger)
}

func isOriginAllowed(origin string, cfg config.ServerConfig, reqHost string) bool {
	if origin == "" {
		// Non-browser clients often omit Origin; keep this path functional.
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
