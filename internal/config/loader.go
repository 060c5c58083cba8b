package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MICROARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus environment. The returned Config has NOT been validated; callers
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads well-known MICROARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStringSlice(&cfg.Symbols, "MICROARB_SYMBOLS")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "MICROARB_FEED_WS_URL")
	setStr(&cfg.Feed.RESTURL, "MICROARB_FEED_REST_URL")
	setInt(&cfg.Feed.DepthLevels, "MICROARB_FEED_DEPTH_LEVELS")

	// ── Imbalance ──
	setStr(&cfg.Imbalance.Strategy, "MICROARB_IMBALANCE_STRATEGY")
	setInt(&cfg.Imbalance.DepthLevels, "MICROARB_IMBALANCE_DEPTH_LEVELS")
	setFloat64(&cfg.Imbalance.MinSpread, "MICROARB_IMBALANCE_MIN_SPREAD")
	setFloat64(&cfg.Imbalance.MaxSpread, "MICROARB_IMBALANCE_MAX_SPREAD")

	// ── Signal ──
	setFloat64(&cfg.Signal.ImbalanceThreshold, "MICROARB_SIGNAL_IMBALANCE_THRESHOLD")
	setFloat64(&cfg.Signal.HysteresisBand, "MICROARB_SIGNAL_HYSTERESIS_BAND")
	setFloat64(&cfg.Signal.VolumeThreshold, "MICROARB_SIGNAL_VOLUME_THRESHOLD")

	// ── Risk ──
	setInt(&cfg.Risk.MaxConcurrentTrades, "MICROARB_RISK_MAX_CONCURRENT_TRADES")
	setFloat64(&cfg.Risk.MaxPositionSize, "MICROARB_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.DailyLossLimit, "MICROARB_RISK_DAILY_LOSS_LIMIT")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "MICROARB_RISK_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.InitialEquity, "MICROARB_RISK_INITIAL_EQUITY")
	setDuration(&cfg.Risk.CheckpointInterval, "MICROARB_RISK_CHECKPOINT_INTERVAL")

	// ── Execution ──
	setStr(&cfg.Execution.Entry.OrderType, "MICROARB_EXECUTION_ENTRY_ORDER_TYPE")
	setInt(&cfg.Execution.Entry.RepriceAttempts, "MICROARB_EXECUTION_ENTRY_REPRICE_ATTEMPTS")
	setDuration(&cfg.Execution.Entry.RepriceDelay, "MICROARB_EXECUTION_ENTRY_REPRICE_DELAY")
	setFloat64(&cfg.Execution.Entry.SlippageTolerance, "MICROARB_EXECUTION_ENTRY_SLIPPAGE_TOLERANCE")
	setStr(&cfg.Execution.Exit.OrderType, "MICROARB_EXECUTION_EXIT_ORDER_TYPE")
	setInt(&cfg.Execution.Exit.RepriceAttempts, "MICROARB_EXECUTION_EXIT_REPRICE_ATTEMPTS")
	setDuration(&cfg.Execution.Exit.RepriceDelay, "MICROARB_EXECUTION_EXIT_REPRICE_DELAY")
	setFloat64(&cfg.Execution.Exit.SlippageTolerance, "MICROARB_EXECUTION_EXIT_SLIPPAGE_TOLERANCE")
	setDuration(&cfg.Execution.AttemptTimeout, "MICROARB_EXECUTION_ATTEMPT_TIMEOUT")
	setFloat64(&cfg.Execution.CapitalPerTradePct, "MICROARB_EXECUTION_CAPITAL_PER_TRADE_PCT")
	setFloat64(&cfg.Execution.StopLossPct, "MICROARB_EXECUTION_STOP_LOSS_PCT")
	setFloat64(&cfg.Execution.TakeProfitPct, "MICROARB_EXECUTION_TAKE_PROFIT_PCT")

	// ── Engine ──
	setInt(&cfg.Engine.QueueSize, "MICROARB_ENGINE_QUEUE_SIZE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MICROARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MICROARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MICROARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MICROARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MICROARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MICROARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MICROARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MICROARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MICROARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MICROARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MICROARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MICROARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MICROARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MICROARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MICROARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MICROARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MICROARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MICROARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MICROARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MICROARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MICROARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "MICROARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MICROARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MICROARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MICROARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MICROARB_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveRetention, "MICROARB_S3_ARCHIVE_RETENTION")
	setDuration(&cfg.S3.ArchiveInterval, "MICROARB_S3_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MICROARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
