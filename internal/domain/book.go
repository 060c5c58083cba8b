package domain

import "time"

// PriceLevel is a single price+quantity entry on one side of an order book.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBookSnapshot is a consistent view of one symbol's order book.
// Bids are sorted descending by price, asks ascending; no two levels on
// the same side share a price. BestBid/BestAsk mirror the head of each
// slice whenever the side is non-empty.
type OrderBookSnapshot struct {
	Symbol       string
	Bids         []PriceLevel
	Asks         []PriceLevel
	BestBid      PriceLevel
	BestAsk      PriceLevel
	LastUpdateID int64
	UpdatedAt    time.Time
}

// HasBothSides reports whether both bid and ask levels exist.
func (s OrderBookSnapshot) HasBothSides() bool {
	return len(s.Bids) > 0 && len(s.Asks) > 0
}

// MidPrice returns the midpoint of the best bid and ask, or 0 when either
// side is missing.
func (s OrderBookSnapshot) MidPrice() float64 {
	if !s.HasBothSides() {
		return 0
	}
	return (s.BestBid.Price + s.BestAsk.Price) / 2
}

// Spread returns the relative bid-ask spread (absolute spread divided by
// mid price), or 0 when either side is missing.
func (s OrderBookSnapshot) Spread() float64 {
	mid := s.MidPrice()
	if mid <= 0 {
		return 0
	}
	return (s.BestAsk.Price - s.BestBid.Price) / mid
}

// TopVolume returns the aggregate best-bid plus best-ask quantity.
func (s OrderBookSnapshot) TopVolume() float64 {
	return s.BestBid.Quantity + s.BestAsk.Quantity
}
