package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/microarb/internal/blob/s3"
	"github.com/alanyoungcy/microarb/internal/cache/redis"
	"github.com/alanyoungcy/microarb/internal/config"
	"github.com/alanyoungcy/microarb/internal/domain"
	"github.com/alanyoungcy/microarb/internal/store/postgres"
)

// Dependencies bundles the optional external collaborators the trading
// core uses when their backends are enabled: Postgres for audit and risk
// state, Redis for the top-of-book cache and signal bus, S3 for audit
// archival. Every field may be nil; the core runs fine without them.
type Dependencies struct {
	AuditStore     domain.AuditStore
	AuditPruner    s3blob.AuditPruner
	RiskStateStore domain.RiskStateStore
	BookTopCache   domain.BookTopCache
	SignalBus      domain.SignalBus
	BlobWriter     domain.BlobWriter
}

// Wire constructs the enabled backend implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		auditStore := postgres.NewAuditStore(pool)
		deps.AuditStore = auditStore
		deps.AuditPruner = auditStore
		deps.RiskStateStore = postgres.NewRiskStateStore(pool)
		logger.Info("postgres wired", slog.String("database", cfg.Postgres.Database))
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.BookTopCache = redis.NewBookTopCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		logger.Info("redis wired", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		logger.Info("s3 wired", slog.String("bucket", cfg.S3.Bucket))
	}

	return deps, cleanup, nil
}
