package metrics

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"depthfeed/pkg/types"
)

// DefaultRingSize is the latency sample window. 16384 rounds to a power
// of two already, so no samples are wasted to NewRing's rounding.
const DefaultRingSize = 16384

// Collector aggregates the wait-free counters, the latency ring buffer,
// and the resource sampler into the single snapshot the API and fanout
// layers publish to subscribers. Every counter here mirrors a field the
// Rust original tracked with an AtomicU64; ComputeSnapshot performs the
// same swap-and-diff rate calculation against the last reset point.
type Collector struct {
	startedAt time.Time

	messageCount uint64
	updateCount  uint64
	tradeCount   uint64
	bytesCount   uint64
	reconnects   uint64

	lastMessageCount uint64
	lastUpdateCount  uint64
	lastTradeCount   uint64
	lastBytesCount   uint64
	lastReset        atomic.Int64 // unix nanos

	latency    *Ring
	percentile *PercentileCache
	resource   *ResourceSampler

	mu            sync.RWMutex
	activeSymbols map[string]struct{}
	connections   int32

	symbolMu sync.Mutex
	symbols  map[string]*symbolStats

	// latest caches the most recent ComputeSnapshot result. ComputeSnapshot
	// itself performs a swap-and-diff against the rate-counter baselines
	// and is meant to have exactly one caller: the engine's 1s broadcast
	// ticker. Everyone else (a subscriber's connect sequence, a REST hit)
	// reads the cached copy via Snapshot instead of calling ComputeSnapshot
	// directly, so a connect or poll landing mid-second can't consume the
	// broadcaster's rate-window baseline out from under it.
	latest atomic.Pointer[types.MetricsMessage]
}

// symbolStats is the per-(venue,symbol) breakdown supplementing spec.md's
// global-only Metrics snapshot, recovered from the original implementation's
// Metrics.symbols map (see SPEC_FULL.md). Same wait-free-write / swap-and-
// diff-read shape as the global counters, just one instance per tracked
// market instead of one for the whole process.
type symbolStats struct {
	messages     uint64
	trades       uint64
	lastMessages uint64
	lastTrades   uint64
	latencySum   uint64
	latencyCount uint64
	spreadBps    uint64 // bits of a float64
	hasSpread    uint32
}

// New builds a collector with a ring buffer sized for DefaultRingSize
// samples. resourceLog may be nil in tests; it is only used for warnings
// from the process lookup.
func New(resourceLog *slog.Logger) *Collector {
	if resourceLog == nil {
		resourceLog = slog.Default()
	}
	ring := NewRing(DefaultRingSize)
	c := &Collector{
		startedAt:     time.Now(),
		latency:       ring,
		percentile:    NewPercentileCache(ring),
		resource:      NewResourceSampler(resourceLog),
		activeSymbols: make(map[string]struct{}),
		symbols:       make(map[string]*symbolStats),
	}
	c.lastReset.Store(c.startedAt.UnixNano())
	c.latest.Store(&types.MetricsMessage{Type: types.MsgMetrics})
	return c
}

// Snapshot returns the most recently computed metrics snapshot without
// touching the rate-counter baselines. Callers that merely want the
// current numbers (a subscriber's connect sequence, a REST request)
// should use this instead of ComputeSnapshot, whose swap-and-diff is
// meant to run from a single owner only.
func (c *Collector) Snapshot() types.MetricsMessage {
	return *c.latest.Load()
}

// RecordMessage counts one inbound venue frame, successfully parsed or not.
func (c *Collector) RecordMessage(bytesLen int) {
	atomic.AddUint64(&c.messageCount, 1)
	atomic.AddUint64(&c.bytesCount, uint64(bytesLen))
}

// RecordUpdate counts one applied order book mutation (snapshot or delta).
func (c *Collector) RecordUpdate() {
	atomic.AddUint64(&c.updateCount, 1)
}

// RecordTrade counts one normalized trade print.
func (c *Collector) RecordTrade() {
	atomic.AddUint64(&c.tradeCount, 1)
}

// RecordReconnect counts one venue connection that dropped and restarted.
func (c *Collector) RecordReconnect() {
	atomic.AddUint64(&c.reconnects, 1)
}

// RecordLatency stores a processing-latency sample in microseconds.
func (c *Collector) RecordLatency(microseconds uint64) {
	c.latency.Record(microseconds)
}

// Track marks venue:symbol as actively streamed, for the active_symbols count.
func (c *Collector) Track(key string) {
	c.mu.Lock()
	c.activeSymbols[key] = struct{}{}
	c.mu.Unlock()
}

// symbolStatsFor returns the stats bucket for key, creating it on first use.
func (c *Collector) symbolStatsFor(key string) *symbolStats {
	c.symbolMu.Lock()
	defer c.symbolMu.Unlock()
	st, ok := c.symbols[key]
	if !ok {
		st = &symbolStats{}
		c.symbols[key] = st
	}
	return st
}

// RecordSymbolUpdate counts one applied book mutation for key, along with
// its processing latency in microseconds, feeding the per-symbol breakdown
// on the outbound Metrics payload.
func (c *Collector) RecordSymbolUpdate(key string, latencyMicroseconds uint64) {
	st := c.symbolStatsFor(key)
	atomic.AddUint64(&st.messages, 1)
	atomic.AddUint64(&st.latencySum, latencyMicroseconds)
	atomic.AddUint64(&st.latencyCount, 1)
}

// RecordSymbolTrade counts one normalized trade print for key.
func (c *Collector) RecordSymbolTrade(key string) {
	atomic.AddUint64(&c.symbolStatsFor(key).trades, 1)
}

// RecordSymbolSpread caches the latest spread-percent reading for key,
// surfaced on the per-symbol breakdown as spread_bps.
func (c *Collector) RecordSymbolSpread(key string, spreadPercent float64) {
	st := c.symbolStatsFor(key)
	atomic.StoreUint64(&st.spreadBps, math.Float64bits(spreadPercent*100))
	atomic.StoreUint32(&st.hasSpread, 1)
}

// SetConnections reports the number of active subscriber sessions, per
// §3's Metrics snapshot "active subscriber count" field.
func (c *Collector) SetConnections(n int32) {
	atomic.StoreInt32(&c.connections, n)
}

// RunPercentileRefresher starts the background percentile recompute loop.
func (c *Collector) RunPercentileRefresher(stop <-chan struct{}, interval time.Duration) {
	c.percentile.RunRefresher(stop, interval)
}

// RunResourceSampler starts the background process resource sampler.
func (c *Collector) RunResourceSampler(ctx context.Context, interval time.Duration) {
	c.resource.Run(ctx, interval)
}

// ComputeSnapshot produces a MetricsMessage, resetting the per-second
// rate counters' baseline the way the Rust collector's compute_metrics
// swapped latency_sum/latency_count against the previous call. It caches
// its result for Snapshot's readers and must have a single caller — the
// engine's broadcast ticker — since two overlapping callers would each
// consume part of the other's rate-window delta. Anything else that just
// wants the current numbers should call Snapshot instead.
func (c *Collector) ComputeSnapshot() types.MetricsMessage {
	now := time.Now()
	lastNanos := c.lastReset.Swap(now.UnixNano())
	elapsed := now.Sub(time.Unix(0, lastNanos)).Seconds()

	curMessages := atomic.LoadUint64(&c.messageCount)
	curUpdates := atomic.LoadUint64(&c.updateCount)
	curTrades := atomic.LoadUint64(&c.tradeCount)
	curBytes := atomic.LoadUint64(&c.bytesCount)

	prevMessages := atomic.SwapUint64(&c.lastMessageCount, curMessages)
	prevUpdates := atomic.SwapUint64(&c.lastUpdateCount, curUpdates)
	prevTrades := atomic.SwapUint64(&c.lastTradeCount, curTrades)
	prevBytes := atomic.SwapUint64(&c.lastBytesCount, curBytes)

	rate := func(cur, prev uint64) uint64 {
		if elapsed <= 0 || cur < prev {
			return 0
		}
		return uint64(float64(cur-prev) / elapsed)
	}

	avg, latMin, latMax, p50, p95, p99 := c.percentile.Values()
	memUsed, memRSS, cpuPct := c.resource.Values()

	c.mu.RLock()
	activeSymbols := len(c.activeSymbols)
	c.mu.RUnlock()

	bySymbol := c.computeSymbolBreakdown(rate)

	msg := types.MetricsMessage{
		Type:                types.MsgMetrics,
		MessagesPerSecond:   rate(curMessages, prevMessages),
		UpdatesPerSecond:    rate(curUpdates, prevUpdates),
		TradesPerSecond:     rate(curTrades, prevTrades),
		LatencyP50Us:        p50,
		LatencyP95Us:        p95,
		LatencyP99Us:        p99,
		LatencyAvgUs:        avg,
		LatencyMinUs:        latMin,
		LatencyMaxUs:        latMax,
		TotalMessages:       curMessages,
		TotalUpdates:        curUpdates,
		TotalTrades:         curTrades,
		UptimeSeconds:       uint64(now.Sub(c.startedAt).Seconds()),
		MemoryUsedMB:        memUsed,
		MemoryRSSMB:         memRSS,
		CPUUsagePercent:     cpuPct,
		ActiveSymbols:       uint32(activeSymbols),
		ActiveConnections:   uint32(atomic.LoadInt32(&c.connections)),
		WebsocketReconnects: atomic.LoadUint64(&c.reconnects),
		BytesReceived:       curBytes,
		BytesPerSecond:      rate(curBytes, prevBytes),
		Symbols:             bySymbol,
	}
	c.latest.Store(&msg)
	return msg
}

// computeSymbolBreakdown swaps-and-diffs every tracked symbol's counters the
// same way ComputeSnapshot does for the global ones, reusing the caller's
// already-computed rate function and elapsed window.
func (c *Collector) computeSymbolBreakdown(rate func(cur, prev uint64) uint64) map[string]types.SymbolMetrics {
	c.symbolMu.Lock()
	defer c.symbolMu.Unlock()

	if len(c.symbols) == 0 {
		return nil
	}

	out := make(map[string]types.SymbolMetrics, len(c.symbols))
	for key, st := range c.symbols {
		curMessages := atomic.LoadUint64(&st.messages)
		curTrades := atomic.LoadUint64(&st.trades)
		prevMessages := atomic.SwapUint64(&st.lastMessages, curMessages)
		prevTrades := atomic.SwapUint64(&st.lastTrades, curTrades)

		var latencyAvg float64
		if n := atomic.LoadUint64(&st.latencyCount); n > 0 {
			latencyAvg = float64(atomic.LoadUint64(&st.latencySum)) / float64(n)
		}

		sm := types.SymbolMetrics{
			MessagesPerSecond: rate(curMessages, prevMessages),
			TradesPerSecond:   rate(curTrades, prevTrades),
			LatencyAvgUs:      latencyAvg,
		}
		if atomic.LoadUint32(&st.hasSpread) == 1 {
			bps := math.Float64frombits(atomic.LoadUint64(&st.spreadBps))
			sm.SpreadBps = &bps
		}
		out[key] = sm
	}
	return out
}
