// Package imbalance derives a normalized liquidity-imbalance metric from
// an order-book snapshot. Multiple strategies implement the Calculator
// capability; the active one is selected once at configuration time.
package imbalance

import (
	"github.com/alanyoungcy/microarb/internal/domain"
)

// Calculator computes a signed metric in [-1, 1] from a snapshot; positive
// means bid-side pressure. The boolean is false when no metric applies
// (empty side, spread outside the configured band). Implementations are
// pure and safe for concurrent use.
type Calculator interface {
	Name() string
	Compute(snap domain.OrderBookSnapshot, depthLevels int) (float64, bool)
}

// Config holds the sanity band shared by all calculator strategies.
// MinSpread/MaxSpread bound the relative bid-ask spread: outside the band
// the book is either locked/crossed garbage or too wide to trade.
type Config struct {
	MinSpread float64
	MaxSpread float64
}

// tradable applies the guards common to every strategy.
func (c Config) tradable(snap domain.OrderBookSnapshot) bool {
	if !snap.HasBothSides() {
		return false
	}
	spread := snap.Spread()
	return spread >= c.MinSpread && spread <= c.MaxSpread
}

// sideVolume sums the quantity of the top depthLevels levels.
func sideVolume(levels []domain.PriceLevel, depthLevels int) float64 {
	if depthLevels <= 0 || depthLevels > len(levels) {
		depthLevels = len(levels)
	}
	var vol float64
	for _, lvl := range levels[:depthLevels] {
		vol += lvl.Quantity
	}
	return vol
}
