package imbalance

import (
	"github.com/alanyoungcy/microarb/internal/domain"
)

// VolumeWeighted is the default strategy: plain volume imbalance over the
// top N levels, (bid_vol - ask_vol) / (bid_vol + ask_vol).
type VolumeWeighted struct {
	cfg Config
}

// NewVolumeWeighted creates the default calculator.
func NewVolumeWeighted(cfg Config) *VolumeWeighted {
	return &VolumeWeighted{cfg: cfg}
}

// Name returns the strategy identifier.
func (c *VolumeWeighted) Name() string { return "volume_weighted" }

// Compute returns the volume imbalance, or false when the book is not
// tradable or carries no volume in the inspected levels.
func (c *VolumeWeighted) Compute(snap domain.OrderBookSnapshot, depthLevels int) (float64, bool) {
	if !c.cfg.tradable(snap) {
		return 0, false
	}
	bidVol := sideVolume(snap.Bids, depthLevels)
	askVol := sideVolume(snap.Asks, depthLevels)
	total := bidVol + askVol
	if total <= 0 {
		return 0, false
	}
	return (bidVol - askVol) / total, true
}

var _ Calculator = (*VolumeWeighted)(nil)
