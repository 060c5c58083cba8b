package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

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

// scriptedVenue replays one response per attempt and captures the
// attempts it saw.
type scriptedVenue struct {
	mu       sync.Mutex
	acks     []domain.VenueAck
	errs     []error
	attempts []domain.ExecutionAttempt
}

func (v *scriptedVenue) PlaceOrder(ctx context.Context, att domain.ExecutionAttempt) (domain.VenueAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := len(v.attempts)
	v.attempts = append(v.attempts, att)
	if i < len(v.errs) && v.errs[i] != nil {
		return domain.VenueAck{}, v.errs[i]
	}
	if i < len(v.acks) {
		return v.acks[i], nil
	}
	return domain.VenueAck{}, &domain.VenueError{Code: "price_race", Message: "price moved", Retryable: true}
}

type recordingRisk struct {
	mu       sync.Mutex
	outcomes []domain.ExecutionOutcome
}

func (r *recordingRisk) RecordOutcome(o domain.ExecutionOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

type memAudit struct {
	mu   sync.Mutex
	recs []domain.AuditRecord
}

func (a *memAudit) Record(ctx context.Context, rec domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

func (a *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditRecord, error) {
	return nil, nil
}

func (a *memAudit) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditRecord, error) {
	return nil, nil
}

func liveBook() stubBooks {
	return stubBooks{snap: domain.OrderBookSnapshot{
		Symbol:  "BTCUSDT",
		Bids:    []domain.PriceLevel{{Price: 100, Quantity: 5}},
		Asks:    []domain.PriceLevel{{Price: 101, Quantity: 5}},
		BestBid: domain.PriceLevel{Price: 100, Quantity: 5},
		BestAsk: domain.PriceLevel{Price: 101, Quantity: 5},
	}}
}

func testConfig() Config {
	return Config{
		Entry: Policy{
			OrderType:         domain.OrderTypeLimit,
			RepriceAttempts:   2,
			RepriceDelay:      time.Millisecond,
			SlippageTolerance: 0.001,
		},
		Exit: Policy{
			OrderType:       domain.OrderTypeMarket,
			RepriceAttempts: 1,
			RepriceDelay:    time.Millisecond,
		},
		AttemptTimeout: 100 * time.Millisecond,
	}
}

func buySig() domain.TradingSignal {
	return domain.TradingSignal{
		ID: "sig-1", Symbol: "BTCUSDT", Direction: domain.SignalBuy,
		Strength: 0.5, GeneratedAt: time.Now().UTC(),
	}
}

func newTestExecutor(venue *scriptedVenue, risk *recordingRisk, audit *memAudit) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExecutor(testConfig(), liveBook(), venue, risk, audit, logger)
}

func TestFillOnFirstAttempt(t *testing.T) {
	venue := &scriptedVenue{acks: []domain.VenueAck{
		{Status: domain.OrderStatusFilled, FilledQuantity: 2, FilledPrice: 101.1},
	}}
	risk := &recordingRisk{}
	audit := &memAudit{}

	out := newTestExecutor(venue, risk, audit).Execute(context.Background(), buySig(), 2, false)

	assert.Equal(t, domain.OrderStatusFilled, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 2.0, out.FilledQuantity)
	assert.Equal(t, "sig-1", out.SignalID)

	require.Len(t, venue.attempts, 1)
	att := venue.attempts[0]
	assert.Equal(t, domain.OrderSideBuy, att.Side)
	assert.Equal(t, domain.OrderTypeLimit, att.Type)
	assert.InDelta(t, 101*1.001, att.Price, 1e-9)
	assert.Equal(t, 1, att.AttemptNumber)

	require.Len(t, risk.outcomes, 1)
	require.Len(t, audit.recs, 1)
	assert.Equal(t, string(domain.OrderStatusFilled), audit.recs[0].Outcome)
}

func TestRetriesThenFills(t *testing.T) {
	race := &domain.VenueError{Code: "price_race", Message: "price moved", Retryable: true}
	venue := &scriptedVenue{
		errs: []error{race, race, nil},
		acks: []domain.VenueAck{{}, {}, {Status: domain.OrderStatusFilled, FilledQuantity: 1, FilledPrice: 101.2}},
	}
	risk := &recordingRisk{}

	out := newTestExecutor(venue, risk, &memAudit{}).Execute(context.Background(), buySig(), 1, false)

	assert.Equal(t, domain.OrderStatusFilled, out.Status)
	assert.Equal(t, 3, out.Attempts)
	require.Len(t, venue.attempts, 3)

	// One logical order: OrderID stable, attempt numbers increment.
	assert.Equal(t, venue.attempts[0].OrderID, venue.attempts[2].OrderID)
	assert.Equal(t, 3, venue.attempts[2].AttemptNumber)
}

func TestAttemptCapYieldsTimedOut(t *testing.T) {
	// Default venue response is a retryable price race forever.
	venue := &scriptedVenue{}
	risk := &recordingRisk{}
	audit := &memAudit{}

	out := newTestExecutor(venue, risk, audit).Execute(context.Background(), buySig(), 1, false)

	assert.Equal(t, domain.OrderStatusTimedOut, out.Status)
	assert.Equal(t, 3, out.Attempts, "reprice_attempts=2 means 3 total attempts")
	assert.Len(t, venue.attempts, 3)
	require.Len(t, risk.outcomes, 1)
	assert.Equal(t, string(domain.OrderStatusTimedOut), audit.recs[0].Outcome)
}

func TestFatalErrorAbortsImmediately(t *testing.T) {
	venue := &scriptedVenue{errs: []error{
		&domain.VenueError{Code: "insufficient_balance", Message: "no funds", Retryable: false},
	}}
	risk := &recordingRisk{}

	out := newTestExecutor(venue, risk, &memAudit{}).Execute(context.Background(), buySig(), 1, false)

	assert.Equal(t, domain.OrderStatusRejected, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Len(t, venue.attempts, 1)
}

func TestCancellationRecordsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	venue := &scriptedVenue{}
	risk := &recordingRisk{}

	out := newTestExecutor(venue, risk, &memAudit{}).Execute(ctx, buySig(), 1, false)

	assert.Equal(t, domain.OrderStatusCancelled, out.Status)
	assert.Empty(t, venue.attempts)
	// The risk reservation is still released.
	require.Len(t, risk.outcomes, 1)
	assert.Equal(t, domain.OrderStatusCancelled, risk.outcomes[0].Status)
}

func TestExitUsesMarketPolicy(t *testing.T) {
	venue := &scriptedVenue{acks: []domain.VenueAck{
		{Status: domain.OrderStatusFilled, FilledQuantity: 1, FilledPrice: 100},
	}}
	risk := &recordingRisk{}

	sig := buySig()
	sig.Direction = domain.SignalSell
	out := newTestExecutor(venue, risk, &memAudit{}).Execute(context.Background(), sig, 1, true)

	assert.True(t, out.Exit)
	require.Len(t, venue.attempts, 1)
	assert.Equal(t, domain.OrderTypeMarket, venue.attempts[0].Type)
	assert.Zero(t, venue.attempts[0].Price)
	assert.Equal(t, domain.OrderSideSell, venue.attempts[0].Side)
}

func TestUnpriceableBookRejects(t *testing.T) {
	venue := &scriptedVenue{}
	risk := &recordingRisk{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// One-sided book cannot price a limit order.
	books := stubBooks{snap: domain.OrderBookSnapshot{
		Symbol: "BTCUSDT",
		Bids:   []domain.PriceLevel{{Price: 100, Quantity: 5}},
	}}
	e := NewExecutor(testConfig(), books, venue, risk, &memAudit{}, logger)

	out := e.Execute(context.Background(), buySig(), 1, false)

	assert.Equal(t, domain.OrderStatusRejected, out.Status)
	assert.Empty(t, venue.attempts)
	require.Len(t, risk.outcomes, 1)
}
