package domain

import "time"

// EventKind discriminates the market-data event shapes consumed by the core.
type EventKind string

const (
	EventBookTicker  EventKind = "book_ticker"
	EventDepthUpdate EventKind = "depth_update"
)

// BookTicker carries the top-of-book for a symbol.
type BookTicker struct {
	Symbol       string
	BestBidPrice float64
	BestBidQty   float64
	BestAskPrice float64
	BestAskQty   float64
	UpdateID     int64
}

// PriceDelta is one level change inside a DepthUpdate. Quantity 0 removes
// the level, any other value upserts it.
type PriceDelta struct {
	Price    float64
	Quantity float64
}

// DepthUpdate carries incremental level changes for a symbol. FirstUpdateID
// and FinalUpdateID delimit the sequence range covered by the event; a gap
// against the book's LastUpdateID invalidates the book.
type DepthUpdate struct {
	Symbol        string
	FirstUpdateID int64
	FinalUpdateID int64
	BidDeltas     []PriceDelta
	AskDeltas     []PriceDelta
}

// MarketEvent is the tagged union handed from the feed to the engine.
// Exactly one of BookTicker/DepthUpdate is non-nil, matching Kind.
type MarketEvent struct {
	Kind        EventKind
	BookTicker  *BookTicker
	DepthUpdate *DepthUpdate
	ReceivedAt  time.Time
}

// Symbol returns the symbol the event belongs to, or "" for a malformed event.
func (e MarketEvent) Symbol() string {
	switch e.Kind {
	case EventBookTicker:
		if e.BookTicker != nil {
			return e.BookTicker.Symbol
		}
	case EventDepthUpdate:
		if e.DepthUpdate != nil {
			return e.DepthUpdate.Symbol
		}
	}
	return ""
}
