package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromExporter exposes the collector's counters on a dedicated registry,
// additive to the ring-buffer-backed MetricsMessage the fanout hub
// broadcasts to WebSocket subscribers — one surface for humans polling
// /metrics with curl or Grafana, one for the live dashboard.
type PromExporter struct {
	registry *prometheus.Registry
	c        *Collector

	messages    prometheus.CounterFunc
	updates     prometheus.CounterFunc
	trades      prometheus.CounterFunc
	bytesIn     prometheus.CounterFunc
	reconnects  prometheus.CounterFunc
	connections prometheus.GaugeFunc
	latencyP99  prometheus.GaugeFunc
}

// NewPromExporter wires CounterFunc/GaugeFunc collectors that read
// straight from the collector's atomics, so scraping never contends
// with the hot path's Record* calls.
func NewPromExporter(c *Collector) *PromExporter {
	reg := prometheus.NewRegistry()
	p := &PromExporter{registry: reg, c: c}

	p.messages = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "depthfeed", Name: "messages_total", Help: "Venue WebSocket frames received.",
	}, func() float64 { return float64(loadU64(&c.messageCount)) })

	p.updates = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "depthfeed", Name: "book_updates_total", Help: "Order book mutations applied.",
	}, func() float64 { return float64(loadU64(&c.updateCount)) })

	p.trades = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "depthfeed", Name: "trades_total", Help: "Normalized trade prints observed.",
	}, func() float64 { return float64(loadU64(&c.tradeCount)) })

	p.bytesIn = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "depthfeed", Name: "bytes_received_total", Help: "Raw bytes read from venue connections.",
	}, func() float64 { return float64(loadU64(&c.bytesCount)) })

	p.reconnects = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "depthfeed", Name: "reconnects_total", Help: "Venue connections that dropped and restarted.",
	}, func() float64 { return float64(loadU64(&c.reconnects)) })

	p.connections = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "depthfeed", Name: "active_subscribers", Help: "Active subscriber WebSocket sessions.",
	}, func() float64 { return float64(loadI32(&c.connections)) })

	p.latencyP99 = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "depthfeed", Name: "latency_p99_microseconds", Help: "p99 message-processing latency.",
	}, func() float64 {
		_, _, _, _, _, p99 := c.percentile.Values()
		return float64(p99)
	})

	reg.MustRegister(p.messages, p.updates, p.trades, p.bytesIn, p.reconnects, p.connections, p.latencyP99)
	return p
}

func loadU64(p *uint64) uint64 { return atomic.LoadUint64(p) }

func loadI32(p *int32) int32 { return atomic.LoadInt32(p) }

// Handler returns the /metrics HTTP handler for this exporter's registry.
func (p *PromExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
