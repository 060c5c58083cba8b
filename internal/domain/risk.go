package domain

import "time"

// Position is one symbol's open exposure. AvgPrice is the volume-weighted
// average entry price, used to realize PnL on closes and to anchor
// stop-loss / take-profit exits.
type Position struct {
	Size     float64 `json:"size"` // positive long, negative short
	AvgPrice float64 `json:"avg_price"`
}

// RiskState is the process-wide portfolio state. A single instance exists,
// owned exclusively by the risk manager; everything outside the manager
// only ever sees copies.
type RiskState struct {
	OpenPositions    map[string]Position `json:"open_positions"`
	DailyRealizedPnL float64             `json:"daily_realized_pnl"`
	PeakEquity       float64             `json:"peak_equity"`
	CurrentEquity    float64             `json:"current_equity"`
	Day              time.Time           `json:"day"` // trading day the daily PnL belongs to
}

// Clone returns a deep copy of the state.
func (s RiskState) Clone() RiskState {
	out := s
	out.OpenPositions = make(map[string]Position, len(s.OpenPositions))
	for sym, pos := range s.OpenPositions {
		out.OpenPositions[sym] = pos
	}
	return out
}

// OpenCount returns the number of symbols with a non-zero position.
func (s RiskState) OpenCount() int {
	n := 0
	for _, pos := range s.OpenPositions {
		if pos.Size != 0 {
			n++
		}
	}
	return n
}

// Risk rejection reasons, stable strings recorded in the audit log.
const (
	RejectMaxConcurrentTrades = "max concurrent trades reached"
	RejectMaxPositionSize     = "position size limit exceeded"
	RejectDailyLossLimit      = "daily loss limit breached"
	RejectMaxDrawdown         = "max drawdown exceeded"
)

// RiskRejection is the control-flow outcome of a failed risk check. It is
// not a fault: the engine logs it, audits it, and moves on.
type RiskRejection struct {
	Reason string
}

// Error implements the error interface so rejections flow through the
// usual error returns while staying distinguishable via errors.As.
func (r *RiskRejection) Error() string {
	return "risk rejected: " + r.Reason
}
