// Package executor turns approved trading signals into venue order
// attempts, repricing against the live book between retries. Every
// invocation ends in exactly one terminal ExecutionOutcome, recorded with
// the risk manager and the audit trail before Execute returns.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// Policy controls how one class of trade (entry or exit) is priced and
// retried.
type Policy struct {
	OrderType       domain.OrderType
	RepriceAttempts int // retries after the first attempt
	RepriceDelay    time.Duration
	// SlippageTolerance widens the limit price past the touch so a fast
	// market does not out-run the order: buys cross at ask*(1+tol), sells
	// at bid*(1-tol). Ignored for market orders.
	SlippageTolerance float64
}

// Config holds the entry and exit policies plus the per-attempt venue
// timeout.
type Config struct {
	Entry          Policy
	Exit           Policy
	AttemptTimeout time.Duration
}

// BookSource provides the live snapshot used to reprice each attempt.
type BookSource interface {
	Snapshot(symbol string) (domain.OrderBookSnapshot, error)
}

// OutcomeRecorder folds a terminal outcome back into the portfolio state.
type OutcomeRecorder interface {
	RecordOutcome(outcome domain.ExecutionOutcome)
}

// Executor runs the attempt loop for one signal at a time per call; calls
// are independent and safe to run concurrently.
type Executor struct {
	cfg    Config
	books  BookSource
	venue  domain.Venue
	risk   OutcomeRecorder
	audit  domain.AuditStore // nil disables the audit trail
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, books BookSource, venue domain.Venue, risk OutcomeRecorder, audit domain.AuditStore, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		books:  books,
		venue:  venue,
		risk:   risk,
		audit:  audit,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Execute runs the full attempt chain for an approved signal and returns
// its terminal outcome. exit marks chains that close an open position;
// they use the exit policy. The outcome is recorded with the risk manager
// and audit store before returning, including on cancellation.
func (e *Executor) Execute(ctx context.Context, sig domain.TradingSignal, quantity float64, exit bool) domain.ExecutionOutcome {
	policy := e.cfg.Entry
	if exit {
		policy = e.cfg.Exit
	}

	orderID := uuid.New().String()
	logger := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("order_id", orderID),
		slog.String("symbol", sig.Symbol),
	)

	maxAttempts := policy.RepriceAttempts + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return e.finish(ctx, sig, domain.ExecutionOutcome{
				Status: domain.OrderStatusCancelled, Attempts: attempt - 1, Exit: exit,
			}, logger)
		}

		price, err := e.targetPrice(sig, policy)
		if err != nil {
			logger.Warn("cannot price attempt", slog.String("error", err.Error()))
			return e.finish(ctx, sig, domain.ExecutionOutcome{
				Status: domain.OrderStatusRejected, Attempts: attempt - 1, Exit: exit,
			}, logger)
		}

		att := domain.ExecutionAttempt{
			OrderID:       orderID,
			Symbol:        sig.Symbol,
			Side:          sig.Direction.Side(),
			Type:          policy.OrderType,
			Price:         price,
			Quantity:      quantity,
			AttemptNumber: attempt,
			Status:        domain.OrderStatusPending,
			SubmittedAt:   time.Now().UTC(),
		}

		ack, err := e.place(ctx, att)
		if err == nil {
			logger.Info("order filled",
				slog.Int("attempt", attempt),
				slog.Float64("filled_qty", ack.FilledQuantity),
				slog.Float64("filled_price", ack.FilledPrice),
			)
			return e.finish(ctx, sig, domain.ExecutionOutcome{
				Status:         ack.Status,
				Attempts:       attempt,
				FilledQuantity: ack.FilledQuantity,
				FilledPrice:    ack.FilledPrice,
				Exit:           exit,
			}, logger)
		}

		if errors.Is(err, context.Canceled) {
			return e.finish(ctx, sig, domain.ExecutionOutcome{
				Status: domain.OrderStatusCancelled, Attempts: attempt, Exit: exit,
			}, logger)
		}
		if !domain.RetryableVenueErr(err) {
			logger.Warn("order rejected",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return e.finish(ctx, sig, domain.ExecutionOutcome{
				Status: domain.OrderStatusRejected, Attempts: attempt, Exit: exit,
			}, logger)
		}

		lastErr = err
		logger.Debug("attempt failed, repricing",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < maxAttempts && policy.RepriceDelay > 0 {
			select {
			case <-ctx.Done():
				return e.finish(ctx, sig, domain.ExecutionOutcome{
					Status: domain.OrderStatusCancelled, Attempts: attempt, Exit: exit,
				}, logger)
			case <-time.After(policy.RepriceDelay):
			}
		}
	}

	logger.Warn("attempt chain exhausted",
		slog.Int("attempts", maxAttempts),
		slog.String("last_error", lastErr.Error()),
	)
	return e.finish(ctx, sig, domain.ExecutionOutcome{
		Status: domain.OrderStatusTimedOut, Attempts: maxAttempts, Exit: exit,
	}, logger)
}

// targetPrice reprices against the current book. Market orders carry no
// price; limit orders cross the touch widened by the slippage tolerance.
func (e *Executor) targetPrice(sig domain.TradingSignal, policy Policy) (float64, error) {
	if policy.OrderType == domain.OrderTypeMarket {
		return 0, nil
	}
	snap, err := e.books.Snapshot(sig.Symbol)
	if err != nil {
		return 0, err
	}
	if !snap.HasBothSides() {
		return 0, domain.ErrResyncRequired
	}
	if sig.Direction == domain.SignalBuy {
		return snap.BestAsk.Price * (1 + policy.SlippageTolerance), nil
	}
	return snap.BestBid.Price * (1 - policy.SlippageTolerance), nil
}

func (e *Executor) place(ctx context.Context, att domain.ExecutionAttempt) (domain.VenueAck, error) {
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}
	return e.venue.PlaceOrder(ctx, att)
}

// finish stamps and records the terminal outcome. Recording must happen
// before returning so the risk reservation is always released.
func (e *Executor) finish(ctx context.Context, sig domain.TradingSignal, outcome domain.ExecutionOutcome, logger *slog.Logger) domain.ExecutionOutcome {
	outcome.SignalID = sig.ID
	outcome.Symbol = sig.Symbol
	outcome.Direction = sig.Direction
	outcome.CompletedAt = time.Now().UTC()

	e.risk.RecordOutcome(outcome)

	if e.audit != nil {
		// Audit with a short independent deadline; the parent may already
		// be cancelled.
		auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		rec := domain.AuditRecord{
			Timestamp: outcome.CompletedAt,
			Symbol:    outcome.Symbol,
			Direction: outcome.Direction,
			Outcome:   string(outcome.Status),
			Attempts:  outcome.Attempts,
		}
		if err := e.audit.Record(auditCtx, rec); err != nil {
			logger.Warn("audit record failed", slog.String("error", err.Error()))
		}
	}
	return outcome
}
