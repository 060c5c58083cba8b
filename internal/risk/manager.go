// Package risk gates every proposed trade against portfolio-level limits
// and keeps the authoritative exposure/PnL state. All mutation happens
// inside the manager's critical section; check-and-reserve is a single
// atomic step so concurrent signals cannot both pass a stale count.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// Config holds the portfolio risk limits.
type Config struct {
	MaxConcurrentTrades int
	MaxPositionSize     float64
	DailyLossLimit      float64
	MaxDrawdownPct      float64
	InitialEquity       float64
}

// Manager owns the process-wide RiskState.
type Manager struct {
	cfg    Config
	store  domain.RiskStateStore // nil disables checkpointing
	logger *slog.Logger

	mu      sync.Mutex
	state   domain.RiskState
	pending int // approved trades whose outcome has not been recorded yet
}

// NewManager creates a Manager seeded from the last checkpointed state.
// When the store is nil or empty, a fresh state at InitialEquity is used.
func NewManager(ctx context.Context, cfg Config, store domain.RiskStateStore, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("component", "risk_manager")),
	}
	m.state = domain.RiskState{
		OpenPositions: make(map[string]domain.Position),
		PeakEquity:    cfg.InitialEquity,
		CurrentEquity: cfg.InitialEquity,
		Day:           tradingDay(time.Now().UTC()),
	}

	if store != nil {
		persisted, err := store.Load(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			m.logger.Info("no persisted risk state, starting fresh",
				slog.Float64("initial_equity", cfg.InitialEquity))
		case err != nil:
			return nil, fmt.Errorf("risk: load state: %w", err)
		default:
			if persisted.OpenPositions == nil {
				persisted.OpenPositions = make(map[string]domain.Position)
			}
			m.state = persisted
			m.rollDayLocked(time.Now().UTC())
			m.logger.Info("risk state restored",
				slog.Float64("equity", persisted.CurrentEquity),
				slog.Int("open_positions", persisted.OpenCount()),
			)
		}
	}
	return m, nil
}

// Approve runs the ordered risk checks for a proposed trade and, when all
// pass, reserves execution capacity in the same critical section. The
// returned error is a *domain.RiskRejection for limit breaches (normal
// control flow) and nil on approval.
func (m *Manager) Approve(sig domain.TradingSignal, quantity, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked(time.Now().UTC())

	// 1. Concurrent trade cap: open positions plus unresolved reservations.
	if m.state.OpenCount()+m.pending >= m.cfg.MaxConcurrentTrades {
		return m.rejectLocked(sig, domain.RejectMaxConcurrentTrades)
	}

	// 2. Resulting position size for the symbol.
	pos := m.state.OpenPositions[sig.Symbol]
	delta := quantity
	if sig.Direction == domain.SignalSell {
		delta = -quantity
	}
	if abs(pos.Size+delta) > m.cfg.MaxPositionSize {
		return m.rejectLocked(sig, domain.RejectMaxPositionSize)
	}

	// 3. Daily realized loss limit.
	if m.state.DailyRealizedPnL <= -m.cfg.DailyLossLimit {
		return m.rejectLocked(sig, domain.RejectDailyLossLimit)
	}

	// 4. Drawdown from peak equity.
	if m.state.PeakEquity > 0 {
		drawdown := (m.state.PeakEquity - m.state.CurrentEquity) / m.state.PeakEquity
		if drawdown > m.cfg.MaxDrawdownPct {
			return m.rejectLocked(sig, domain.RejectMaxDrawdown)
		}
	}

	m.pending++
	m.logger.Debug("trade approved",
		slog.String("signal_id", sig.ID),
		slog.String("symbol", sig.Symbol),
		slog.Float64("quantity", quantity),
		slog.Float64("price", price),
		slog.Int("pending", m.pending),
	)
	return nil
}

func (m *Manager) rejectLocked(sig domain.TradingSignal, reason string) error {
	m.logger.Warn("trade rejected",
		slog.String("signal_id", sig.ID),
		slog.String("symbol", sig.Symbol),
		slog.String("reason", reason),
	)
	return &domain.RiskRejection{Reason: reason}
}

// RecordOutcome releases the reservation taken by Approve and folds a
// terminal execution outcome into positions, realized PnL, and equity.
// Called exactly once per attempt chain, before the executor returns.
// Exit chains do not pass through Approve and hold no reservation.
func (m *Manager) RecordOutcome(outcome domain.ExecutionOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !outcome.Exit && m.pending > 0 {
		m.pending--
	}

	if outcome.FilledQuantity <= 0 {
		return
	}

	pos := m.state.OpenPositions[outcome.Symbol]
	qty := outcome.FilledQuantity
	if outcome.Direction == domain.SignalSell {
		qty = -qty
	}

	switch {
	case pos.Size == 0 || sameSign(pos.Size, qty):
		// Opening or adding: blend the average entry price.
		newSize := pos.Size + qty
		pos.AvgPrice = (abs(pos.Size)*pos.AvgPrice + abs(qty)*outcome.FilledPrice) / abs(newSize)
		pos.Size = newSize
	default:
		// Reducing or flipping: realize PnL on the closed portion.
		closed := min(abs(qty), abs(pos.Size))
		direction := 1.0
		if pos.Size < 0 {
			direction = -1
		}
		realized := direction * closed * (outcome.FilledPrice - pos.AvgPrice)
		m.state.DailyRealizedPnL += realized
		m.state.CurrentEquity += realized
		if m.state.CurrentEquity > m.state.PeakEquity {
			m.state.PeakEquity = m.state.CurrentEquity
		}

		pos.Size += qty
		if pos.Size == 0 {
			pos.AvgPrice = 0
		} else if !sameSign(pos.Size, direction) {
			// Flipped through zero: remainder is a new position at the
			// fill price.
			pos.AvgPrice = outcome.FilledPrice
		}
	}

	if pos.Size == 0 {
		delete(m.state.OpenPositions, outcome.Symbol)
	} else {
		m.state.OpenPositions[outcome.Symbol] = pos
	}

	m.logger.Info("execution outcome recorded",
		slog.String("signal_id", outcome.SignalID),
		slog.String("symbol", outcome.Symbol),
		slog.String("status", string(outcome.Status)),
		slog.Float64("position", pos.Size),
		slog.Float64("daily_pnl", m.state.DailyRealizedPnL),
		slog.Float64("equity", m.state.CurrentEquity),
	)
}

// Position returns the current position for a symbol.
func (m *Manager) Position(symbol string) domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.OpenPositions[symbol]
}

// Equity returns the current equity.
func (m *Manager) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentEquity
}

// State returns a copy of the full risk state.
func (m *Manager) State() domain.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Checkpoint persists the current state through the configured store.
func (m *Manager) Checkpoint(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	snapshot := m.State()
	if err := m.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("risk: checkpoint: %w", err)
	}
	return nil
}

// RunCheckpoints persists the state on the given interval until ctx ends.
func (m *Manager) RunCheckpoints(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Final best-effort checkpoint on shutdown.
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Checkpoint(saveCtx); err != nil {
				m.logger.Warn("final risk checkpoint failed", slog.String("error", err.Error()))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if err := m.Checkpoint(ctx); err != nil {
				m.logger.Warn("risk checkpoint failed", slog.String("error", err.Error()))
			}
		}
	}
}

// rollDayLocked resets the daily realized PnL at a trading-day boundary.
func (m *Manager) rollDayLocked(now time.Time) {
	day := tradingDay(now)
	if !day.Equal(m.state.Day) {
		m.logger.Info("trading day rolled",
			slog.Float64("previous_daily_pnl", m.state.DailyRealizedPnL))
		m.state.Day = day
		m.state.DailyRealizedPnL = 0
	}
}

func tradingDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

