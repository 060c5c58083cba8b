package domain

import "context"

// BookTopCache publishes each symbol's top-of-book to a shared cache so
// dashboards and sibling processes can read it without touching the
// in-memory book store.
type BookTopCache interface {
	SetTop(ctx context.Context, symbol string, snap OrderBookSnapshot) error
	GetTop(ctx context.Context, symbol string) (bestBid, bestAsk PriceLevel, err error)
}

// SignalBus broadcasts emitted trading signals to external consumers.
type SignalBus interface {
	PublishSignal(ctx context.Context, sig TradingSignal) error
}
