package domain

import "time"

// SignalDirection indicates which side of the book a signal wants to trade.
type SignalDirection string

const (
	SignalBuy  SignalDirection = "buy"
	SignalSell SignalDirection = "sell"
)

// Side returns the order side matching the signal direction.
func (d SignalDirection) Side() OrderSide {
	if d == SignalSell {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Opposite returns the reverse direction.
func (d SignalDirection) Opposite() SignalDirection {
	if d == SignalBuy {
		return SignalSell
	}
	return SignalBuy
}

// TradingSignal is emitted by the signal generator when the imbalance
// metric crosses its threshold. Immutable once created; Strength is the
// metric value that triggered the signal.
type TradingSignal struct {
	ID          string // UUID
	Symbol      string
	Direction   SignalDirection
	Strength    float64
	GeneratedAt time.Time
}
