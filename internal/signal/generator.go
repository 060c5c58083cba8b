// Package signal turns imbalance metrics into edge-triggered trading
// signals. Each symbol runs a tiny state machine {idle, active(dir)} with
// a hysteresis band so the threshold boundary cannot flap, bounding
// execution to one signal per distinct imbalance episode.
package signal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// Config holds the signal tuning parameters.
type Config struct {
	// ImbalanceThreshold is the |metric| level that arms a signal.
	ImbalanceThreshold float64
	// HysteresisBand re-arms the state machine only once |metric| falls
	// back inside this band around zero.
	HysteresisBand float64
	// VolumeThreshold is the minimum top-of-book aggregate quantity for a
	// snapshot to count at all; thinner books are treated as idle.
	VolumeThreshold float64
}

type state struct {
	active    bool
	direction domain.SignalDirection
}

// Generator evaluates metrics per symbol. Safe for concurrent use across
// symbols; in practice each symbol's pipeline calls it from one goroutine.
type Generator struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]state
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "signal_generator")),
		states: make(map[string]state),
	}
}

// Evaluate feeds one metric observation for the snapshot's symbol and
// returns a new TradingSignal on an idle-to-active transition, nil
// otherwise. metricOK is false when the calculator produced no metric for
// this snapshot; that leaves the state machine untouched.
func (g *Generator) Evaluate(snap domain.OrderBookSnapshot, metric float64, metricOK bool) *domain.TradingSignal {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.states[snap.Symbol]

	// Volume filter: a thin top-of-book forces idle regardless of the
	// imbalance value.
	if snap.TopVolume() < g.cfg.VolumeThreshold {
		if st.active {
			g.states[snap.Symbol] = state{}
		}
		return nil
	}
	if !metricOK {
		return nil
	}

	if st.active {
		if abs(metric) <= g.cfg.HysteresisBand {
			g.states[snap.Symbol] = state{}
			g.logger.Debug("signal episode ended",
				slog.String("symbol", snap.Symbol),
				slog.String("direction", string(st.direction)),
				slog.Float64("metric", metric),
			)
		}
		return nil
	}

	var dir domain.SignalDirection
	switch {
	case metric >= g.cfg.ImbalanceThreshold:
		dir = domain.SignalBuy
	case metric <= -g.cfg.ImbalanceThreshold:
		dir = domain.SignalSell
	default:
		return nil
	}

	g.states[snap.Symbol] = state{active: true, direction: dir}
	sig := &domain.TradingSignal{
		ID:          uuid.New().String(),
		Symbol:      snap.Symbol,
		Direction:   dir,
		Strength:    metric,
		GeneratedAt: time.Now().UTC(),
	}
	g.logger.Info("trading signal generated",
		slog.String("signal_id", sig.ID),
		slog.String("symbol", sig.Symbol),
		slog.String("direction", string(dir)),
		slog.Float64("strength", metric),
	)
	return sig
}

// Reset clears the state machine for a symbol, used when its book is
// invalidated and rebuilt.
func (g *Generator) Reset(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, symbol)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
