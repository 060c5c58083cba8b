// Package venue provides order-placement backends. The paper venue fills
// attempts against the live in-memory book, so the full pipeline runs
// end-to-end without exchange credentials.
package venue

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// BookSource supplies the book the paper venue fills against.
type BookSource interface {
	Snapshot(symbol string) (domain.OrderBookSnapshot, error)
}

// Paper simulates an exchange: market orders fill at the opposite touch,
// limit orders fill only when they cross it. A limit order left behind by
// the market comes back as a retryable price race, which drives the
// executor's reprice loop exactly like the real venue would.
type Paper struct {
	books  BookSource
	logger *slog.Logger
}

var _ domain.Venue = (*Paper)(nil)

// NewPaper creates a paper venue.
func NewPaper(books BookSource, logger *slog.Logger) *Paper {
	return &Paper{
		books:  books,
		logger: logger.With(slog.String("component", "paper_venue")),
	}
}

// PlaceOrder fills the attempt against the current book state.
func (p *Paper) PlaceOrder(ctx context.Context, attempt domain.ExecutionAttempt) (domain.VenueAck, error) {
	if err := ctx.Err(); err != nil {
		return domain.VenueAck{}, err
	}
	if attempt.Quantity <= 0 {
		return domain.VenueAck{}, &domain.VenueError{
			Code: "invalid_quantity", Message: "quantity must be positive", Retryable: false,
		}
	}

	snap, err := p.books.Snapshot(attempt.Symbol)
	if err != nil || !snap.HasBothSides() {
		return domain.VenueAck{}, &domain.VenueError{
			Code: "no_liquidity", Message: "no book for " + attempt.Symbol, Retryable: true,
		}
	}

	touch := snap.BestAsk
	if attempt.Side == domain.OrderSideSell {
		touch = snap.BestBid
	}

	if attempt.Type == domain.OrderTypeLimit {
		crossed := (attempt.Side == domain.OrderSideBuy && attempt.Price >= touch.Price) ||
			(attempt.Side == domain.OrderSideSell && attempt.Price <= touch.Price)
		if !crossed {
			return domain.VenueAck{}, &domain.VenueError{
				Code: "price_race", Message: "limit price no longer crosses the book", Retryable: true,
			}
		}
	}

	filled := attempt.Quantity
	status := domain.OrderStatusFilled
	if touch.Quantity < attempt.Quantity {
		filled = touch.Quantity
		status = domain.OrderStatusPartiallyFilled
	}

	p.logger.Debug("paper fill",
		slog.String("order_id", attempt.OrderID),
		slog.String("symbol", attempt.Symbol),
		slog.String("side", string(attempt.Side)),
		slog.Float64("price", touch.Price),
		slog.Float64("quantity", filled),
	)
	return domain.VenueAck{
		OrderID:        attempt.OrderID,
		Status:         status,
		FilledQuantity: filled,
		FilledPrice:    touch.Price,
	}, nil
}
