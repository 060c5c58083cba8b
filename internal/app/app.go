// Package app provides top-level lifecycle management: it wires the
// enabled backends, assembles the trading pipeline, and runs every
// long-lived component under one errgroup until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/microarb/internal/blob/s3"
	"github.com/alanyoungcy/microarb/internal/book"
	"github.com/alanyoungcy/microarb/internal/config"
	"github.com/alanyoungcy/microarb/internal/domain"
	"github.com/alanyoungcy/microarb/internal/engine"
	"github.com/alanyoungcy/microarb/internal/executor"
	"github.com/alanyoungcy/microarb/internal/feed"
	"github.com/alanyoungcy/microarb/internal/imbalance"
	"github.com/alanyoungcy/microarb/internal/risk"
	"github.com/alanyoungcy/microarb/internal/signal"
	"github.com/alanyoungcy/microarb/internal/venue"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, assembles the pipeline, and blocks until the
// context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.Any("symbols", a.cfg.Symbols),
		slog.String("imbalance_strategy", a.cfg.Imbalance.Strategy),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	books := book.NewStore(a.logger)

	registry := imbalance.NewRegistry(imbalance.Config{
		MinSpread: a.cfg.Imbalance.MinSpread,
		MaxSpread: a.cfg.Imbalance.MaxSpread,
	})
	calc, err := registry.Get(a.cfg.Imbalance.Strategy)
	if err != nil {
		return fmt.Errorf("app: select imbalance strategy: %w", err)
	}

	gen := signal.NewGenerator(signal.Config{
		ImbalanceThreshold: a.cfg.Signal.ImbalanceThreshold,
		HysteresisBand:     a.cfg.Signal.HysteresisBand,
		VolumeThreshold:    a.cfg.Signal.VolumeThreshold,
	}, a.logger)

	riskMgr, err := risk.NewManager(ctx, risk.Config{
		MaxConcurrentTrades: a.cfg.Risk.MaxConcurrentTrades,
		MaxPositionSize:     a.cfg.Risk.MaxPositionSize,
		DailyLossLimit:      a.cfg.Risk.DailyLossLimit,
		MaxDrawdownPct:      a.cfg.Risk.MaxDrawdownPct,
		InitialEquity:       a.cfg.Risk.InitialEquity,
	}, deps.RiskStateStore, a.logger)
	if err != nil {
		return fmt.Errorf("app: risk manager: %w", err)
	}

	paperVenue := venue.NewPaper(books, a.logger)
	exec := executor.NewExecutor(executor.Config{
		Entry:          policyFromConfig(a.cfg.Execution.Entry),
		Exit:           policyFromConfig(a.cfg.Execution.Exit),
		AttemptTimeout: a.cfg.Execution.AttemptTimeout.Duration,
	}, books, paperVenue, riskMgr, deps.AuditStore, a.logger)

	snapshots := feed.NewSnapshotClient(a.cfg.Feed.RESTURL, a.cfg.Feed.DepthLevels)
	eng := engine.NewEngine(engine.Config{
		DepthLevels:        a.cfg.Imbalance.DepthLevels,
		QueueSize:          a.cfg.Engine.QueueSize,
		CapitalPerTradePct: a.cfg.Execution.CapitalPerTradePct,
		StopLossPct:        a.cfg.Execution.StopLossPct,
		TakeProfitPct:      a.cfg.Execution.TakeProfitPct,
	}, books, calc, gen, riskMgr, exec, snapshots, deps.AuditStore,
		deps.BookTopCache, deps.SignalBus, a.logger)

	events := make(chan domain.MarketEvent, a.cfg.Engine.QueueSize)
	wsFeed := feed.NewWSFeed(a.cfg.Feed.WSURL, a.cfg.Symbols, events, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsFeed.Run(gctx) })
	g.Go(func() error { return eng.Run(gctx, events) })
	if deps.RiskStateStore != nil {
		g.Go(func() error {
			return riskMgr.RunCheckpoints(gctx, a.cfg.Risk.CheckpointInterval.Duration)
		})
	}
	if a.cfg.S3.Enabled && deps.BlobWriter != nil && deps.AuditStore != nil {
		archiver := s3blob.NewArchiver(deps.BlobWriter, deps.AuditStore,
			deps.AuditPruner, a.cfg.S3.ArchiveRetention.Duration, a.logger)
		g.Go(func() error { return archiver.Run(gctx, a.cfg.S3.ArchiveInterval.Duration) })
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func policyFromConfig(p config.PolicyConfig) executor.Policy {
	return executor.Policy{
		OrderType:         domain.OrderType(p.OrderType),
		RepriceAttempts:   p.RepriceAttempts,
		RepriceDelay:      p.RepriceDelay.Duration,
		SlippageTolerance: p.SlippageTolerance,
	}
}
