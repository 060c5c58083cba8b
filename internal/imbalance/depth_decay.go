package imbalance

import (
	"github.com/alanyoungcy/microarb/internal/domain"
)

// DepthDecay weights each level's volume by 1/(1+i) so liquidity near the
// top of the book dominates the metric. Useful on books where deep resting
// size rarely trades.
type DepthDecay struct {
	cfg Config
}

// NewDepthDecay creates the decay-weighted calculator.
func NewDepthDecay(cfg Config) *DepthDecay {
	return &DepthDecay{cfg: cfg}
}

// Name returns the strategy identifier.
func (c *DepthDecay) Name() string { return "depth_decay" }

// Compute returns the decay-weighted imbalance, or false when the book is
// not tradable.
func (c *DepthDecay) Compute(snap domain.OrderBookSnapshot, depthLevels int) (float64, bool) {
	if !c.cfg.tradable(snap) {
		return 0, false
	}
	bidVol := decayVolume(snap.Bids, depthLevels)
	askVol := decayVolume(snap.Asks, depthLevels)
	total := bidVol + askVol
	if total <= 0 {
		return 0, false
	}
	return (bidVol - askVol) / total, true
}

func decayVolume(levels []domain.PriceLevel, depthLevels int) float64 {
	if depthLevels <= 0 || depthLevels > len(levels) {
		depthLevels = len(levels)
	}
	var vol float64
	for i, lvl := range levels[:depthLevels] {
		vol += lvl.Quantity / float64(1+i)
	}
	return vol
}

var _ Calculator = (*DepthDecay)(nil)
