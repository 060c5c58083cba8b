package signal

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/microarb/internal/domain"
)

func newTestGenerator() *Generator {
	return NewGenerator(Config{
		ImbalanceThreshold: 0.3,
		HysteresisBand:     0.1,
		VolumeThreshold:    5,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func topSnap(symbol string, bidQty, askQty float64) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Symbol:  symbol,
		Bids:    []domain.PriceLevel{{Price: 100, Quantity: bidQty}},
		Asks:    []domain.PriceLevel{{Price: 101, Quantity: askQty}},
		BestBid: domain.PriceLevel{Price: 100, Quantity: bidQty},
		BestAsk: domain.PriceLevel{Price: 101, Quantity: askQty},
	}
}

func TestEmitsOncePerEpisode(t *testing.T) {
	g := newTestGenerator()
	snap := topSnap("BTCUSDT", 10, 2)

	sig := g.Evaluate(snap, 0.67, true)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalBuy, sig.Direction)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.InDelta(t, 0.67, sig.Strength, 1e-9)
	assert.NotEmpty(t, sig.ID)

	// Still above threshold: no second emission while active.
	assert.Nil(t, g.Evaluate(snap, 0.8, true))
	assert.Nil(t, g.Evaluate(snap, 0.31, true))
}

func TestSellSignalOnNegativeMetric(t *testing.T) {
	g := newTestGenerator()
	sig := g.Evaluate(topSnap("ETHUSDT", 2, 10), -0.5, true)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalSell, sig.Direction)
}

func TestHysteresisPreventsFlapping(t *testing.T) {
	g := newTestGenerator()
	snap := topSnap("BTCUSDT", 10, 2)

	require.NotNil(t, g.Evaluate(snap, 0.4, true))

	// Dips below threshold but outside the hysteresis band: stays active.
	assert.Nil(t, g.Evaluate(snap, 0.2, true))
	assert.Nil(t, g.Evaluate(snap, 0.35, true))

	// Inside the band: episode ends, but no signal on the way out.
	assert.Nil(t, g.Evaluate(snap, 0.05, true))

	// New crossing starts a fresh episode.
	sig := g.Evaluate(snap, 0.45, true)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalBuy, sig.Direction)
}

func TestNoSignalInsideBandWhileIdle(t *testing.T) {
	g := newTestGenerator()
	snap := topSnap("BTCUSDT", 10, 10)

	assert.Nil(t, g.Evaluate(snap, 0.05, true))
	assert.Nil(t, g.Evaluate(snap, -0.09, true))
	assert.Nil(t, g.Evaluate(snap, 0.29, true))
}

func TestVolumeFilterForcesIdle(t *testing.T) {
	g := newTestGenerator()

	// Top-of-book volume 3 < threshold 5: no signal no matter the metric.
	thin := topSnap("BTCUSDT", 2, 1)
	assert.Nil(t, g.Evaluate(thin, 0.9, true))

	// An active episode ends when volume dries up, and the next thick
	// crossing re-arms.
	thick := topSnap("BTCUSDT", 10, 2)
	require.NotNil(t, g.Evaluate(thick, 0.5, true))
	assert.Nil(t, g.Evaluate(thin, 0.5, true))
	require.NotNil(t, g.Evaluate(thick, 0.5, true))
}

func TestMissingMetricLeavesStateUntouched(t *testing.T) {
	g := newTestGenerator()
	snap := topSnap("BTCUSDT", 10, 2)

	require.NotNil(t, g.Evaluate(snap, 0.5, true))
	assert.Nil(t, g.Evaluate(snap, 0, false))
	// Still active: no re-emission.
	assert.Nil(t, g.Evaluate(snap, 0.6, true))
}

func TestSymbolsAreIndependent(t *testing.T) {
	g := newTestGenerator()

	require.NotNil(t, g.Evaluate(topSnap("BTCUSDT", 10, 2), 0.5, true))
	sig := g.Evaluate(topSnap("ETHUSDT", 10, 2), 0.5, true)
	require.NotNil(t, sig)
	assert.Equal(t, "ETHUSDT", sig.Symbol)
}
