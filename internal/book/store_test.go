package book

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/microarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func depth(symbol string, first, final int64, bids, asks []domain.PriceDelta) domain.DepthUpdate {
	return domain.DepthUpdate{
		Symbol:        symbol,
		FirstUpdateID: first,
		FinalUpdateID: final,
		BidDeltas:     bids,
		AskDeltas:     asks,
	}
}

func TestApplyDepthUpdateOrderingInvariants(t *testing.T) {
	s := NewStore(testLogger())

	err := s.ApplyDepthUpdate(depth("BTCUSDT", 1, 1,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}, {Price: 99, Quantity: 3}, {Price: 100.5, Quantity: 2}},
		[]domain.PriceDelta{{Price: 101, Quantity: 1}, {Price: 102, Quantity: 4}, {Price: 101.5, Quantity: 2}},
	))
	require.NoError(t, err)

	snap, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)

	for i := 1; i < len(snap.Bids); i++ {
		assert.Greater(t, snap.Bids[i-1].Price, snap.Bids[i].Price, "bids must strictly descend")
	}
	for i := 1; i < len(snap.Asks); i++ {
		assert.Less(t, snap.Asks[i-1].Price, snap.Asks[i].Price, "asks must strictly ascend")
	}
	assert.Equal(t, snap.Bids[0], snap.BestBid)
	assert.Equal(t, snap.Asks[0], snap.BestAsk)
	assert.Equal(t, int64(1), snap.LastUpdateID)
}

func TestApplyDepthUpdateUpsertAndRemove(t *testing.T) {
	s := NewStore(testLogger())

	require.NoError(t, s.ApplyDepthUpdate(depth("ETHUSDT", 1, 1,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}},
		[]domain.PriceDelta{{Price: 101, Quantity: 1}},
	)))
	// Update quantity at an existing price: still one level, new quantity.
	require.NoError(t, s.ApplyDepthUpdate(depth("ETHUSDT", 2, 2,
		[]domain.PriceDelta{{Price: 100, Quantity: 7}},
		nil,
	)))
	// Quantity 0 removes the level.
	require.NoError(t, s.ApplyDepthUpdate(depth("ETHUSDT", 3, 3,
		nil,
		[]domain.PriceDelta{{Price: 101, Quantity: 0}},
	)))

	snap, err := s.Snapshot("ETHUSDT")
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 7.0, snap.Bids[0].Quantity)
	assert.Empty(t, snap.Asks)
	assert.Equal(t, domain.PriceLevel{}, snap.BestAsk)
}

func TestStaleUpdatesAreNoOps(t *testing.T) {
	s := NewStore(testLogger())

	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 1, 10,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}},
		[]domain.PriceDelta{{Price: 101, Quantity: 2}},
	)))
	before, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)

	// Depth update entirely behind the book.
	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 4, 8,
		[]domain.PriceDelta{{Price: 50, Quantity: 1}},
		nil,
	)))
	// Book ticker behind the book.
	require.NoError(t, s.ApplyBookTicker(domain.BookTicker{
		Symbol: "BTCUSDT", BestBidPrice: 1, BestBidQty: 1, BestAskPrice: 2, BestAskQty: 1, UpdateID: 3,
	}))

	after, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSequenceGapRequiresResync(t *testing.T) {
	s := NewStore(testLogger())

	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 1, 10,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}},
		nil,
	)))

	// 12 > 10+1: gap.
	err := s.ApplyDepthUpdate(depth("BTCUSDT", 12, 15,
		[]domain.PriceDelta{{Price: 99, Quantity: 1}},
		nil,
	))
	require.ErrorIs(t, err, domain.ErrResyncRequired)
	assert.True(t, s.NeedsResync("BTCUSDT"))

	// Subsequent contiguous updates are refused until a rebuild.
	err = s.ApplyDepthUpdate(depth("BTCUSDT", 16, 16, nil, nil))
	require.ErrorIs(t, err, domain.ErrResyncRequired)

	s.Rebuild("BTCUSDT",
		[]domain.PriceLevel{{Price: 98, Quantity: 2}},
		[]domain.PriceLevel{{Price: 99.5, Quantity: 3}},
		20,
	)
	assert.False(t, s.NeedsResync("BTCUSDT"))

	snap, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(20), snap.LastUpdateID)
	assert.Equal(t, 98.0, snap.BestBid.Price)

	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 21, 21,
		[]domain.PriceDelta{{Price: 98.5, Quantity: 1}},
		nil,
	)))
}

func TestBookTickerReplacesTopAndPrunesStaleLevels(t *testing.T) {
	s := NewStore(testLogger())

	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 1, 1,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}, {Price: 99, Quantity: 3}},
		[]domain.PriceDelta{{Price: 101, Quantity: 2}, {Price: 102, Quantity: 4}},
	)))

	// Top moves up: the old 101 ask is below the new best ask and must go.
	require.NoError(t, s.ApplyBookTicker(domain.BookTicker{
		Symbol:       "BTCUSDT",
		BestBidPrice: 100.5, BestBidQty: 1,
		BestAskPrice: 101.5, BestAskQty: 2,
		UpdateID: 2,
	}))

	snap, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100.5, snap.BestBid.Price)
	assert.Equal(t, 101.5, snap.BestAsk.Price)
	for _, lvl := range snap.Asks {
		assert.GreaterOrEqual(t, lvl.Price, 101.5)
	}
	for _, lvl := range snap.Bids {
		assert.LessOrEqual(t, lvl.Price, 100.5)
	}
	assert.Less(t, snap.BestBid.Price, snap.BestAsk.Price)
}

func TestCrossedDepthDropsStaleOpposingLevels(t *testing.T) {
	s := NewStore(testLogger())

	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 1, 1,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}},
		[]domain.PriceDelta{{Price: 101, Quantity: 2}},
	)))

	// New bid crosses the resting ask: newest write wins, ask dropped.
	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 2, 2,
		[]domain.PriceDelta{{Price: 101.5, Quantity: 1}},
		nil,
	)))

	snap, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 101.5, snap.BestBid.Price)
	if snap.HasBothSides() {
		assert.Less(t, snap.BestBid.Price, snap.BestAsk.Price)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(testLogger())
	require.NoError(t, s.ApplyDepthUpdate(depth("BTCUSDT", 1, 1,
		[]domain.PriceDelta{{Price: 100, Quantity: 5}},
		[]domain.PriceDelta{{Price: 101, Quantity: 2}},
	)))

	snap, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)
	snap.Bids[0].Quantity = 999

	fresh, err := s.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 5.0, fresh.Bids[0].Quantity)
}

func TestSymbolsUpdateIndependently(t *testing.T) {
	s := NewStore(testLogger())
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "LINKUSDT"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := int64(1); i <= 200; i++ {
				_ = s.ApplyDepthUpdate(depth(sym, i, i,
					[]domain.PriceDelta{{Price: 100 + float64(i%7), Quantity: float64(i)}},
					[]domain.PriceDelta{{Price: 110 + float64(i%5), Quantity: float64(i)}},
				))
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range symbols {
		snap, err := s.Snapshot(sym)
		require.NoError(t, err)
		assert.Equal(t, int64(200), snap.LastUpdateID, sym)
		assert.True(t, snap.HasBothSides(), sym)
	}
}

func TestSnapshotUnknownSymbol(t *testing.T) {
	s := NewStore(testLogger())
	_, err := s.Snapshot("NOPE")
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}
