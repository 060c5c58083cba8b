package venue

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/microarb/internal/domain"
)

type stubBooks struct {
	snap domain.OrderBookSnapshot
	err  error
}

func (s stubBooks) Snapshot(symbol string) (domain.OrderBookSnapshot, error) {
	return s.snap, s.err
}

func testPaper(snap domain.OrderBookSnapshot) *Paper {
	return NewPaper(stubBooks{snap: snap}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func twoSided(bidPx, bidQty, askPx, askQty float64) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Symbol:  "BTCUSDT",
		Bids:    []domain.PriceLevel{{Price: bidPx, Quantity: bidQty}},
		Asks:    []domain.PriceLevel{{Price: askPx, Quantity: askQty}},
		BestBid: domain.PriceLevel{Price: bidPx, Quantity: bidQty},
		BestAsk: domain.PriceLevel{Price: askPx, Quantity: askQty},
	}
}

func attempt(side domain.OrderSide, typ domain.OrderType, price, qty float64) domain.ExecutionAttempt {
	return domain.ExecutionAttempt{
		OrderID: "ord-1", Symbol: "BTCUSDT", Side: side, Type: typ,
		Price: price, Quantity: qty, AttemptNumber: 1,
	}
}

func TestMarketOrderFillsAtTouch(t *testing.T) {
	p := testPaper(twoSided(100, 5, 100.2, 5))

	ack, err := p.PlaceOrder(context.Background(), attempt(domain.OrderSideBuy, domain.OrderTypeMarket, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, ack.Status)
	assert.Equal(t, 100.2, ack.FilledPrice)
	assert.Equal(t, 2.0, ack.FilledQuantity)

	ack, err = p.PlaceOrder(context.Background(), attempt(domain.OrderSideSell, domain.OrderTypeMarket, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 100.0, ack.FilledPrice)
}

func TestCrossingLimitFills(t *testing.T) {
	p := testPaper(twoSided(100, 5, 100.2, 5))

	ack, err := p.PlaceOrder(context.Background(), attempt(domain.OrderSideBuy, domain.OrderTypeLimit, 100.3, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, ack.Status)
	// Fills at the touch, not the limit.
	assert.Equal(t, 100.2, ack.FilledPrice)
}

func TestNonCrossingLimitIsPriceRace(t *testing.T) {
	p := testPaper(twoSided(100, 5, 100.2, 5))

	_, err := p.PlaceOrder(context.Background(), attempt(domain.OrderSideBuy, domain.OrderTypeLimit, 100.1, 1))
	require.Error(t, err)
	var ve *domain.VenueError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "price_race", ve.Code)
	assert.True(t, ve.Retryable)
	assert.True(t, domain.RetryableVenueErr(err))
}

func TestThinTouchPartialFill(t *testing.T) {
	p := testPaper(twoSided(100, 5, 100.2, 1.5))

	ack, err := p.PlaceOrder(context.Background(), attempt(domain.OrderSideBuy, domain.OrderTypeMarket, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, ack.Status)
	assert.Equal(t, 1.5, ack.FilledQuantity)
}

func TestEmptyBookIsRetryable(t *testing.T) {
	p := NewPaper(stubBooks{err: domain.ErrUnknownSymbol}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := p.PlaceOrder(context.Background(), attempt(domain.OrderSideBuy, domain.OrderTypeMarket, 0, 1))
	var ve *domain.VenueError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "no_liquidity", ve.Code)
	assert.True(t, ve.Retryable)
}

func TestInvalidQuantityIsFatal(t *testing.T) {
	p := testPaper(twoSided(100, 5, 100.2, 5))

	_, err := p.PlaceOrder(context.Background(), attempt(domain.OrderSideBuy, domain.OrderTypeMarket, 0, 0))
	var ve *domain.VenueError
	require.ErrorAs(t, err, &ve)
	assert.False(t, ve.Retryable)
}

func TestCancelledContext(t *testing.T) {
	p := testPaper(twoSided(100, 5, 100.2, 5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PlaceOrder(ctx, attempt(domain.OrderSideBuy, domain.OrderTypeMarket, 0, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
