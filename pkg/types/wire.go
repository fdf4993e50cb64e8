package types

// ClientMessageType discriminates the outbound frames sent to subscribers.
// Mirrors the tagged union described in the wire protocol: one JSON object
// per frame with a "type" field selecting which payload fields are set.
type ClientMessageType string

const (
	MsgBookUpdate  ClientMessageType = "book_update"
	MsgTrade       ClientMessageType = "trade"
	MsgMetrics     ClientMessageType = "metrics"
	MsgSymbolList  ClientMessageType = "symbol_list"
)

// WireLevel is a single price level as sent to subscribers: decimal strings,
// never floats, so clients don't have to reason about binary rounding.
type WireLevel struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// BookUpdateMessage is the full-book payload for a single (venue, symbol).
// BidDepth/AskDepth are the summed quantities across the returned window,
// not the whole book — an aggregate consumers use for depth-chart display.
type BookUpdateMessage struct {
	Type          ClientMessageType `json:"type"`
	Exchange      string            `json:"exchange"`
	Symbol        string            `json:"symbol"`
	Bids          []WireLevel       `json:"bids"`
	Asks          []WireLevel       `json:"asks"`
	Spread        string            `json:"spread"`
	SpreadPercent string            `json:"spread_percent"`
	BidDepth      string            `json:"bid_depth"`
	AskDepth      string            `json:"ask_depth"`
	LastUpdateID  uint64            `json:"last_update_id"`
}

// TradeMessage is a single trade print forwarded to subscribers.
type TradeMessage struct {
	Type      ClientMessageType `json:"type"`
	Exchange  string            `json:"exchange"`
	Symbol    string            `json:"symbol"`
	Price     string            `json:"price"`
	Qty       string            `json:"qty"`
	Side      string            `json:"side"`
	Timestamp int64             `json:"timestamp"`
}

// SymbolMetrics is the per-(venue,symbol) breakdown carried on MetricsMessage,
// a supplemented feature recovered from the original implementation's
// per-symbol metrics map.
type SymbolMetrics struct {
	MessagesPerSecond uint64   `json:"messages_per_second"`
	TradesPerSecond   uint64   `json:"trades_per_second"`
	LatencyAvgUs      float64  `json:"latency_avg_us"`
	SpreadBps         *float64 `json:"spread_bps,omitempty"`
}

// MetricsMessage is the periodic aggregate metrics snapshot.
type MetricsMessage struct {
	Type ClientMessageType `json:"type"`

	MessagesPerSecond uint64 `json:"messages_per_second"`
	UpdatesPerSecond  uint64 `json:"updates_per_second"`
	TradesPerSecond   uint64 `json:"trades_per_second"`

	LatencyAvgUs float64 `json:"latency_avg_us"`
	LatencyMinUs uint64  `json:"latency_min_us"`
	LatencyMaxUs uint64  `json:"latency_max_us"`
	LatencyP50Us uint64  `json:"latency_p50_us"`
	LatencyP95Us uint64  `json:"latency_p95_us"`
	LatencyP99Us uint64  `json:"latency_p99_us"`

	TotalMessages uint64 `json:"total_messages"`
	TotalUpdates  uint64 `json:"total_updates"`
	TotalTrades   uint64 `json:"total_trades"`

	UptimeSeconds    uint64  `json:"uptime_seconds"`
	MemoryUsedMB     float64 `json:"memory_used_mb"`
	MemoryRSSMB      float64 `json:"memory_rss_mb"`
	CPUUsagePercent  float64 `json:"cpu_usage_percent"`

	ActiveSymbols       uint32 `json:"active_symbols"`
	ActiveConnections   uint32 `json:"active_connections"`
	WebsocketReconnects uint64 `json:"websocket_reconnects"`

	BytesReceived   uint64 `json:"bytes_received"`
	BytesPerSecond  uint64 `json:"bytes_per_second"`

	Symbols map[string]SymbolMetrics `json:"symbols,omitempty"`
}

// SymbolListMessage announces the full set of venue:symbol books the server
// tracks, sent once at the start of every subscriber session.
type SymbolListMessage struct {
	Type    ClientMessageType `json:"type"`
	Symbols []string          `json:"symbols"`
}
