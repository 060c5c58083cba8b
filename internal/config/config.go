// Package config defines the top-level configuration for the trading core
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MICROARB_* environment
// variables.
type Config struct {
	Symbols   []string        `toml:"symbols"`
	Feed      FeedConfig      `toml:"feed"`
	Imbalance ImbalanceConfig `toml:"imbalance"`
	Signal    SignalConfig    `toml:"signal"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Engine    EngineConfig    `toml:"engine"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig holds the exchange market-data endpoints.
type FeedConfig struct {
	WSURL       string `toml:"ws_url"`
	RESTURL     string `toml:"rest_url"`
	DepthLevels int    `toml:"depth_levels"` // levels per side in resync snapshots
}

// ImbalanceConfig selects and tunes the imbalance calculator.
type ImbalanceConfig struct {
	Strategy    string  `toml:"strategy"` // "volume_weighted" or "depth_decay"
	DepthLevels int     `toml:"depth_levels"`
	MinSpread   float64 `toml:"min_spread"` // relative spread band gating the metric
	MaxSpread   float64 `toml:"max_spread"`
}

// SignalConfig tunes the signal generator.
type SignalConfig struct {
	ImbalanceThreshold float64 `toml:"imbalance_threshold"`
	HysteresisBand     float64 `toml:"hysteresis_band"`
	VolumeThreshold    float64 `toml:"volume_threshold"`
}

// RiskConfig holds the portfolio limits.
type RiskConfig struct {
	MaxConcurrentTrades int      `toml:"max_concurrent_trades"`
	MaxPositionSize     float64  `toml:"max_position_size"`
	DailyLossLimit      float64  `toml:"daily_loss_limit"`
	MaxDrawdownPct      float64  `toml:"max_drawdown_pct"`
	InitialEquity       float64  `toml:"initial_equity"`
	CheckpointInterval  duration `toml:"checkpoint_interval"`
}

// PolicyConfig describes how one class of order is priced and retried.
type PolicyConfig struct {
	OrderType         string   `toml:"order_type"` // "limit" or "market"
	RepriceAttempts   int      `toml:"reprice_attempts"`
	RepriceDelay      duration `toml:"reprice_delay"`
	SlippageTolerance float64  `toml:"slippage_tolerance"`
}

// ExecutionConfig holds entry/exit policies and position management.
type ExecutionConfig struct {
	Entry              PolicyConfig `toml:"entry"`
	Exit               PolicyConfig `toml:"exit"`
	AttemptTimeout     duration     `toml:"attempt_timeout"`
	CapitalPerTradePct float64      `toml:"capital_per_trade_pct"`
	StopLossPct        float64      `toml:"stop_loss_pct"`
	TakeProfitPct      float64      `toml:"take_profit_pct"`
}

// EngineConfig tunes the per-symbol pipelines.
type EngineConfig struct {
	QueueSize int `toml:"queue_size"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the audit
// archiver.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchiveRetention duration `toml:"archive_retention"`
	ArchiveInterval  duration `toml:"archive_interval"`
}

// duration wraps time.Duration so TOML values can be written as "100ms".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		Feed: FeedConfig{
			WSURL:       "wss://stream.binance.com:9443",
			RESTURL:     "https://api.binance.com",
			DepthLevels: 100,
		},
		Imbalance: ImbalanceConfig{
			Strategy:    "volume_weighted",
			DepthLevels: 5,
			MinSpread:   0.0001,
			MaxSpread:   0.01,
		},
		Signal: SignalConfig{
			ImbalanceThreshold: 0.3,
			HysteresisBand:     0.1,
			VolumeThreshold:    1000,
		},
		Risk: RiskConfig{
			MaxConcurrentTrades: 1,
			MaxPositionSize:     1000,
			DailyLossLimit:      500,
			MaxDrawdownPct:      0.05,
			InitialEquity:       10000,
			CheckpointInterval:  duration{30 * time.Second},
		},
		Execution: ExecutionConfig{
			Entry: PolicyConfig{
				OrderType:         "limit",
				RepriceAttempts:   3,
				RepriceDelay:      duration{100 * time.Millisecond},
				SlippageTolerance: 0.001,
			},
			Exit: PolicyConfig{
				OrderType:         "market",
				RepriceAttempts:   2,
				RepriceDelay:      duration{50 * time.Millisecond},
				SlippageTolerance: 0.002,
			},
			AttemptTimeout:     duration{2 * time.Second},
			CapitalPerTradePct: 0.01,
			StopLossPct:        0.02,
			TakeProfitPct:      0.01,
		},
		Engine: EngineConfig{
			QueueSize: 256,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "microarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "microarb-data",
			ForcePathStyle:   true,
			ArchiveRetention: duration{90 * 24 * time.Hour},
			ArchiveInterval:  duration{24 * time.Hour},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validOrderTypes = map[string]bool{
	"limit":  true,
	"market": true,
}

var validStrategies = map[string]bool{
	"volume_weighted": true,
	"depth_decay":     true,
}

// Validate checks the Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, "symbols: empty symbol entry")
			break
		}
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Feed.WSURL == "" {
		errs = append(errs, "feed: ws_url is required")
	}
	if c.Feed.RESTURL == "" {
		errs = append(errs, "feed: rest_url is required")
	}

	if !validStrategies[c.Imbalance.Strategy] {
		errs = append(errs, fmt.Sprintf("imbalance: unknown strategy %q (valid: volume_weighted, depth_decay)", c.Imbalance.Strategy))
	}
	if c.Imbalance.DepthLevels <= 0 {
		errs = append(errs, "imbalance: depth_levels must be positive")
	}
	if c.Imbalance.MinSpread < 0 || c.Imbalance.MaxSpread <= 0 || c.Imbalance.MinSpread >= c.Imbalance.MaxSpread {
		errs = append(errs, "imbalance: spread band requires 0 <= min_spread < max_spread")
	}

	if c.Signal.ImbalanceThreshold <= 0 || c.Signal.ImbalanceThreshold > 1 {
		errs = append(errs, "signal: imbalance_threshold must be in (0, 1]")
	}
	if c.Signal.HysteresisBand < 0 || c.Signal.HysteresisBand >= c.Signal.ImbalanceThreshold {
		errs = append(errs, "signal: hysteresis_band must be in [0, imbalance_threshold)")
	}
	if c.Signal.VolumeThreshold < 0 {
		errs = append(errs, "signal: volume_threshold must not be negative")
	}

	if c.Risk.MaxConcurrentTrades <= 0 {
		errs = append(errs, "risk: max_concurrent_trades must be positive")
	}
	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be positive")
	}
	if c.Risk.DailyLossLimit <= 0 {
		errs = append(errs, "risk: daily_loss_limit must be positive")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct >= 1 {
		errs = append(errs, "risk: max_drawdown_pct must be in (0, 1)")
	}
	if c.Risk.InitialEquity <= 0 {
		errs = append(errs, "risk: initial_equity must be positive")
	}

	for name, p := range map[string]PolicyConfig{"entry": c.Execution.Entry, "exit": c.Execution.Exit} {
		if !validOrderTypes[p.OrderType] {
			errs = append(errs, fmt.Sprintf("execution.%s: unknown order_type %q (valid: limit, market)", name, p.OrderType))
		}
		if p.RepriceAttempts < 0 {
			errs = append(errs, fmt.Sprintf("execution.%s: reprice_attempts must not be negative", name))
		}
		if p.SlippageTolerance < 0 {
			errs = append(errs, fmt.Sprintf("execution.%s: slippage_tolerance must not be negative", name))
		}
	}
	if c.Execution.CapitalPerTradePct <= 0 || c.Execution.CapitalPerTradePct > 1 {
		errs = append(errs, "execution: capital_per_trade_pct must be in (0, 1]")
	}
	if c.Execution.StopLossPct < 0 || c.Execution.TakeProfitPct < 0 {
		errs = append(errs, "execution: stop_loss_pct and take_profit_pct must not be negative")
	}

	if c.Engine.QueueSize <= 0 {
		errs = append(errs, "engine: queue_size must be positive")
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "") {
		errs = append(errs, "postgres: dsn or host/database/user required when enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr required when enabled")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			errs = append(errs, "s3: bucket and region required when enabled")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: audit archiver requires postgres to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
