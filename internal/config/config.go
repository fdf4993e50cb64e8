// Package config defines all configuration for the order book aggregator.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// operational overrides via DEPTHFEED_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Book      BookConfig      `mapstructure:"book"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Venues    VenuesConfig    `mapstructure:"venues"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the subscriber-facing HTTP/WebSocket listener.
type ServerConfig struct {
	ListenAddress  string   `mapstructure:"listen_address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BookConfig tunes the order book engine shared by every (venue, symbol) pair.
//
//   - OrderbookDepth: max levels per side retained in the engine (§3 max_depth).
//   - DisplayDepth: top-N levels sent to subscribers in each BookUpdate.
type BookConfig struct {
	OrderbookDepth int `mapstructure:"orderbook_depth"`
	DisplayDepth   int `mapstructure:"display_depth"`
}

// FanoutConfig tunes the broadcast channel and per-subscriber poll cadence.
type FanoutConfig struct {
	BroadcastCapacity int           `mapstructure:"broadcast_capacity"`
	BookPollInterval  time.Duration `mapstructure:"book_poll_ms"`
}

// MetricsConfig tunes the percentile cache refresh and resource sampler.
type MetricsConfig struct {
	PercentileRefresh time.Duration `mapstructure:"percentile_refresh_ms"`
	SystemSample      time.Duration `mapstructure:"system_sample_s"`
}

// VenuesConfig selects which exchanges to connect to and the trading
// universe to subscribe on each.
type VenuesConfig struct {
	Enabled            []string      `mapstructure:"enabled"`
	TradingPairs       []string      `mapstructure:"trading_pairs"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnect_backoff_s"`
	SnapshotDepthLimit int           `mapstructure:"snapshot_depth_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from the YAML file at path with env var overrides. Load
// itself does not consult DEPTHFEED_CONFIG; cmd/aggregator reads that
// variable to choose the path it passes in.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("DEPTHFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("DEPTHFEED_LISTEN_ADDRESS"); addr != "" {
		cfg.Server.ListenAddress = addr
	}
	if lvl := os.Getenv("DEPTHFEED_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in the defaults from spec.md §6 for any field left
// unset by the YAML file (a bare `viper.Unmarshal` leaves unset numeric
// fields at Go's zero value, which is never a sane default here).
func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = "0.0.0.0:8080"
	}
	if c.Book.OrderbookDepth == 0 {
		c.Book.OrderbookDepth = 25
	}
	if c.Book.DisplayDepth == 0 {
		c.Book.DisplayDepth = 5
	}
	if c.Fanout.BroadcastCapacity == 0 {
		c.Fanout.BroadcastCapacity = 16384
	}
	if c.Fanout.BookPollInterval == 0 {
		c.Fanout.BookPollInterval = 200 * time.Millisecond
	}
	if c.Metrics.PercentileRefresh == 0 {
		c.Metrics.PercentileRefresh = 900 * time.Millisecond
	}
	if c.Metrics.SystemSample == 0 {
		c.Metrics.SystemSample = 10 * time.Second
	}
	if c.Venues.ReconnectBackoff == 0 {
		c.Venues.ReconnectBackoff = 5 * time.Second
	}
	if c.Venues.SnapshotDepthLimit == 0 {
		c.Venues.SnapshotDepthLimit = 1000
	}
	if len(c.Venues.Enabled) == 0 {
		c.Venues.Enabled = []string{"binance", "bybit", "coinbase", "kraken"}
	}
	if len(c.Venues.TradingPairs) == 0 {
		c.Venues.TradingPairs = []string{
			"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "LINKUSDT",
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address is required")
	}
	if c.Book.OrderbookDepth <= 0 {
		return fmt.Errorf("book.orderbook_depth must be > 0")
	}
	if c.Book.DisplayDepth <= 0 {
		return fmt.Errorf("book.display_depth must be > 0")
	}
	if c.Book.DisplayDepth > c.Book.OrderbookDepth {
		return fmt.Errorf("book.display_depth must not exceed book.orderbook_depth")
	}
	if c.Fanout.BroadcastCapacity <= 0 {
		return fmt.Errorf("fanout.broadcast_capacity must be > 0")
	}
	if c.Fanout.BookPollInterval <= 0 {
		return fmt.Errorf("fanout.book_poll_ms must be > 0")
	}
	if c.Metrics.PercentileRefresh <= 0 {
		return fmt.Errorf("metrics.percentile_refresh_ms must be > 0")
	}
	if c.Metrics.SystemSample <= 0 {
		return fmt.Errorf("metrics.system_sample_s must be > 0")
	}
	if c.Venues.ReconnectBackoff <= 0 {
		return fmt.Errorf("venues.reconnect_backoff_s must be > 0")
	}
	if len(c.Venues.Enabled) == 0 {
		return fmt.Errorf("venues.enabled must list at least one venue")
	}
	if len(c.Venues.TradingPairs) == 0 {
		return fmt.Errorf("venues.trading_pairs must list at least one symbol")
	}
	return nil
}
