// Package engine wires the market-data stream to the trading core. A
// dispatcher fans the inbound event stream out to one worker per symbol,
// each with a bounded queue, so a slow symbol can never stall the others.
// Signal handling, risk approval, and execution hand-off all happen on the
// symbol's worker goroutine; executions themselves run detached.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/microarb/internal/domain"
	"github.com/alanyoungcy/microarb/internal/imbalance"
	"github.com/alanyoungcy/microarb/internal/signal"
)

// Config tunes the per-symbol pipelines.
type Config struct {
	// DepthLevels bounds how many book levels the imbalance metric reads.
	DepthLevels int
	// QueueSize bounds each symbol's event queue; overflow drops the event.
	QueueSize int
	// CapitalPerTradePct sizes entries as a fraction of current equity.
	CapitalPerTradePct float64
	// StopLossPct and TakeProfitPct trigger exits measured from the
	// position's average entry price. Zero disables the check.
	StopLossPct   float64
	TakeProfitPct float64
}

// BookStore is the book state the engine drives.
type BookStore interface {
	ApplyBookTicker(ev domain.BookTicker) error
	ApplyDepthUpdate(ev domain.DepthUpdate) error
	Snapshot(symbol string) (domain.OrderBookSnapshot, error)
	NeedsResync(symbol string) bool
	Rebuild(symbol string, bids, asks []domain.PriceLevel, lastUpdateID int64)
}

// SnapshotRequester fetches a full depth snapshot to rebuild an
// invalidated book.
type SnapshotRequester interface {
	DepthSnapshot(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error)
}

// RiskGate is the slice of the risk manager the engine needs.
type RiskGate interface {
	Approve(sig domain.TradingSignal, quantity, price float64) error
	Position(symbol string) domain.Position
	Equity() float64
}

// Trader runs one attempt chain to its terminal outcome.
type Trader interface {
	Execute(ctx context.Context, sig domain.TradingSignal, quantity float64, exit bool) domain.ExecutionOutcome
}

// Engine demultiplexes market events into per-symbol pipelines.
type Engine struct {
	cfg       Config
	books     BookStore
	calc      imbalance.Calculator
	gen       *signal.Generator
	risk      RiskGate
	trader    Trader
	snapshots SnapshotRequester    // nil disables automatic resync
	audit     domain.AuditStore    // nil disables rejection auditing
	topCache  domain.BookTopCache  // nil disables top-of-book publishing
	bus       domain.SignalBus     // nil disables signal broadcasting
	logger    *slog.Logger

	mu      sync.Mutex
	workers map[string]*worker
	execWG  sync.WaitGroup
}

// NewEngine creates an Engine. snapshots, audit, topCache, and bus are
// optional collaborators.
func NewEngine(cfg Config, books BookStore, calc imbalance.Calculator, gen *signal.Generator,
	risk RiskGate, trader Trader, snapshots SnapshotRequester, audit domain.AuditStore,
	topCache domain.BookTopCache, bus domain.SignalBus, logger *slog.Logger) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Engine{
		cfg:       cfg,
		books:     books,
		calc:      calc,
		gen:       gen,
		risk:      risk,
		trader:    trader,
		snapshots: snapshots,
		audit:     audit,
		topCache:  topCache,
		bus:       bus,
		logger:    logger.With(slog.String("component", "engine")),
		workers:   make(map[string]*worker),
	}
}

// Run consumes the event stream until it closes or ctx ends, then drains
// the per-symbol queues and waits for in-flight executions to settle.
func (e *Engine) Run(ctx context.Context, events <-chan domain.MarketEvent) error {
	e.logger.Info("engine started",
		slog.String("calculator", e.calc.Name()),
		slog.Int("queue_size", e.cfg.QueueSize),
	)

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case ev, ok := <-events:
			if !ok {
				e.logger.Info("event stream closed")
				break loop
			}
			e.dispatch(ctx, ev)
		}
	}

	e.mu.Lock()
	for _, w := range e.workers {
		close(w.queue)
	}
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}
	e.execWG.Wait()
	e.logger.Info("engine stopped")
	return err
}

func (e *Engine) dispatch(ctx context.Context, ev domain.MarketEvent) {
	symbol := ev.Symbol()
	if symbol == "" {
		e.logger.Warn("malformed event dropped", slog.String("kind", string(ev.Kind)))
		return
	}

	w := e.workerFor(ctx, symbol)
	select {
	case w.queue <- ev:
	default:
		// The book self-heals via the depth-sequence resync path, so
		// dropping under pressure is safe.
		e.logger.Warn("event queue full, dropping event",
			slog.String("symbol", symbol),
			slog.String("kind", string(ev.Kind)),
		)
	}
}

func (e *Engine) workerFor(ctx context.Context, symbol string) *worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workers[symbol]; ok {
		return w
	}
	w := &worker{
		symbol: symbol,
		queue:  make(chan domain.MarketEvent, e.cfg.QueueSize),
		done:   make(chan struct{}),
	}
	e.workers[symbol] = w
	go e.runWorker(ctx, w)
	return w
}

// worker owns one symbol's pipeline. Events are processed strictly in
// arrival order on a single goroutine; only the in-flight execution handle
// is shared with the detached execution goroutine.
type worker struct {
	symbol string
	queue  chan domain.MarketEvent
	done   chan struct{}

	mu       sync.Mutex
	inflight *inflight
}

type inflight struct {
	direction domain.SignalDirection
	cancel    context.CancelFunc
}

func (w *worker) current() *inflight {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight
}

func (w *worker) setInflight(fl *inflight) {
	w.mu.Lock()
	w.inflight = fl
	w.mu.Unlock()
}

func (w *worker) clearInflight(fl *inflight) {
	w.mu.Lock()
	if w.inflight == fl {
		w.inflight = nil
	}
	w.mu.Unlock()
}

func (e *Engine) runWorker(ctx context.Context, w *worker) {
	defer close(w.done)
	logger := e.logger.With(slog.String("symbol", w.symbol))

	for ev := range w.queue {
		if ctx.Err() != nil {
			continue // drain without processing
		}
		e.process(ctx, w, ev, logger)
	}
}

func (e *Engine) process(ctx context.Context, w *worker, ev domain.MarketEvent, logger *slog.Logger) {
	var applyErr error
	switch ev.Kind {
	case domain.EventBookTicker:
		applyErr = e.books.ApplyBookTicker(*ev.BookTicker)
	case domain.EventDepthUpdate:
		applyErr = e.books.ApplyDepthUpdate(*ev.DepthUpdate)
	default:
		logger.Warn("unknown event kind dropped", slog.String("kind", string(ev.Kind)))
		return
	}
	if applyErr != nil {
		if errors.Is(applyErr, domain.ErrResyncRequired) {
			e.resync(ctx, w.symbol, logger)
		} else {
			logger.Warn("event apply failed", slog.String("error", applyErr.Error()))
		}
		return
	}

	snap, err := e.books.Snapshot(w.symbol)
	if err != nil {
		logger.Warn("snapshot failed", slog.String("error", err.Error()))
		return
	}
	e.publishTop(ctx, snap, logger)

	metric, metricOK := e.calc.Compute(snap, e.cfg.DepthLevels)
	sig := e.gen.Evaluate(snap, metric, metricOK)

	if sig == nil {
		e.checkExits(ctx, w, snap, logger)
		return
	}
	e.handleSignal(ctx, w, *sig, snap, logger)
}

// resync rebuilds an invalidated book from a full depth snapshot and
// resets the symbol's signal state so stale episodes cannot leak across
// the rebuild.
func (e *Engine) resync(ctx context.Context, symbol string, logger *slog.Logger) {
	if e.snapshots == nil {
		logger.Warn("book needs resync but no snapshot requester configured")
		return
	}
	full, err := e.snapshots.DepthSnapshot(ctx, symbol)
	if err != nil {
		logger.Warn("depth snapshot fetch failed", slog.String("error", err.Error()))
		return
	}
	e.books.Rebuild(symbol, full.Bids, full.Asks, full.LastUpdateID)
	e.gen.Reset(symbol)
}

func (e *Engine) handleSignal(ctx context.Context, w *worker, sig domain.TradingSignal, snap domain.OrderBookSnapshot, logger *slog.Logger) {
	e.publishSignal(ctx, sig, logger)

	if fl := w.current(); fl != nil {
		if fl.direction == sig.Direction {
			return // same-direction chain already running
		}
		logger.Info("opposite signal, cancelling in-flight execution",
			slog.String("signal_id", sig.ID))
		fl.cancel()
		return
	}

	// An opposite-direction signal against an open position closes it
	// rather than stacking an opposing entry.
	if pos := e.risk.Position(w.symbol); pos.Size != 0 && opposesPosition(sig.Direction, pos.Size) {
		e.startExecution(ctx, w, sig, abs(pos.Size), true, logger)
		return
	}

	price := snap.MidPrice()
	if price <= 0 {
		logger.Warn("signal dropped, book has no mid price", slog.String("signal_id", sig.ID))
		return
	}
	quantity := e.risk.Equity() * e.cfg.CapitalPerTradePct / price
	if quantity <= 0 {
		logger.Warn("signal dropped, sized to zero", slog.String("signal_id", sig.ID))
		return
	}

	if err := e.risk.Approve(sig, quantity, price); err != nil {
		var rej *domain.RiskRejection
		if errors.As(err, &rej) {
			e.auditRejection(ctx, sig, rej.Reason, logger)
			return
		}
		logger.Error("risk approval failed", slog.String("error", err.Error()))
		return
	}
	e.startExecution(ctx, w, sig, quantity, false, logger)
}

// checkExits closes an open position once the mark moves past the
// stop-loss or take-profit bound from its average entry price.
func (e *Engine) checkExits(ctx context.Context, w *worker, snap domain.OrderBookSnapshot, logger *slog.Logger) {
	if e.cfg.StopLossPct <= 0 && e.cfg.TakeProfitPct <= 0 {
		return
	}
	if w.current() != nil {
		return
	}
	pos := e.risk.Position(w.symbol)
	if pos.Size == 0 || pos.AvgPrice <= 0 {
		return
	}
	mark := snap.MidPrice()
	if mark <= 0 {
		return
	}

	move := (mark - pos.AvgPrice) / pos.AvgPrice
	if pos.Size < 0 {
		move = -move
	}

	var reason string
	switch {
	case e.cfg.StopLossPct > 0 && move <= -e.cfg.StopLossPct:
		reason = "stop_loss"
	case e.cfg.TakeProfitPct > 0 && move >= e.cfg.TakeProfitPct:
		reason = "take_profit"
	default:
		return
	}

	dir := domain.SignalSell
	if pos.Size < 0 {
		dir = domain.SignalBuy
	}
	logger.Info("position exit triggered",
		slog.String("reason", reason),
		slog.Float64("avg_price", pos.AvgPrice),
		slog.Float64("mark", mark),
		slog.Float64("size", pos.Size),
	)
	exitSig := domain.TradingSignal{
		ID:          uuid.New().String(),
		Symbol:      w.symbol,
		Direction:   dir,
		GeneratedAt: time.Now().UTC(),
	}
	e.startExecution(ctx, w, exitSig, abs(pos.Size), true, logger)
}

// startExecution hands the chain to a detached goroutine with a stored
// cancel func so a later opposite signal can abort it. Exits reduce
// exposure and bypass risk approval.
func (e *Engine) startExecution(ctx context.Context, w *worker, sig domain.TradingSignal, quantity float64, exit bool, logger *slog.Logger) {
	execCtx, cancel := context.WithCancel(ctx)
	fl := &inflight{direction: sig.Direction, cancel: cancel}
	w.setInflight(fl)

	e.execWG.Add(1)
	go func() {
		defer e.execWG.Done()
		defer cancel()
		defer w.clearInflight(fl)
		out := e.trader.Execute(execCtx, sig, quantity, exit)
		logger.Debug("execution settled",
			slog.String("signal_id", sig.ID),
			slog.String("status", string(out.Status)),
			slog.Bool("exit", exit),
		)
	}()
}

func (e *Engine) publishTop(ctx context.Context, snap domain.OrderBookSnapshot, logger *slog.Logger) {
	if e.topCache == nil || !snap.HasBothSides() {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := e.topCache.SetTop(cacheCtx, snap.Symbol, snap); err != nil {
		logger.Debug("top-of-book publish failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) publishSignal(ctx context.Context, sig domain.TradingSignal, logger *slog.Logger) {
	if e.bus == nil {
		return
	}
	busCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := e.bus.PublishSignal(busCtx, sig); err != nil {
		logger.Warn("signal publish failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) auditRejection(ctx context.Context, sig domain.TradingSignal, reason string, logger *slog.Logger) {
	if e.audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	rec := domain.AuditRecord{
		Timestamp:       time.Now().UTC(),
		Symbol:          sig.Symbol,
		Direction:       sig.Direction,
		Outcome:         "risk_rejected",
		RejectionReason: reason,
	}
	if err := e.audit.Record(auditCtx, rec); err != nil {
		logger.Warn("rejection audit failed", slog.String("error", err.Error()))
	}
}

func opposesPosition(dir domain.SignalDirection, size float64) bool {
	return (size > 0 && dir == domain.SignalSell) || (size < 0 && dir == domain.SignalBuy)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
