// Package book maintains the authoritative in-memory order book for every
// traded symbol. Each symbol owns its book exclusively; updates to
// different symbols proceed in parallel, updates to one symbol are
// serialized by its lock, and readers only ever receive copies.
package book

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// Store holds one book per symbol. The registry map has its own lock,
// which is never held together with a per-symbol book lock.
type Store struct {
	mu     sync.RWMutex
	books  map[string]*symbolBook
	logger *slog.Logger
}

type symbolBook struct {
	mu         sync.Mutex
	snap       domain.OrderBookSnapshot
	needResync bool
}

// NewStore creates an empty Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		books:  make(map[string]*symbolBook),
		logger: logger.With(slog.String("component", "book_store")),
	}
}

// get returns the book for symbol, creating it on first sight.
func (s *Store) get(symbol string) *symbolBook {
	s.mu.RLock()
	b, ok := s.books[symbol]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.books[symbol]; ok {
		return b
	}
	b = &symbolBook{snap: domain.OrderBookSnapshot{Symbol: symbol}}
	s.books[symbol] = b
	return b
}

// ApplyBookTicker replaces the top-of-book for the event's symbol. A stale
// event (UpdateID below the book's LastUpdateID) is a silent no-op, not an
// error. Levels that the new top proves stale (bids above the new best bid,
// asks below the new best ask) are dropped so the book never stays crossed.
func (s *Store) ApplyBookTicker(ev domain.BookTicker) error {
	if ev.Symbol == "" {
		return fmt.Errorf("book: apply book ticker: empty symbol")
	}
	b := s.get(ev.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.UpdateID < b.snap.LastUpdateID {
		return nil
	}

	snap := &b.snap

	// Drop levels the fresh top-of-book contradicts.
	snap.Bids = trimAbove(snap.Bids, ev.BestBidPrice)
	snap.Asks = trimBelow(snap.Asks, ev.BestAskPrice)

	if ev.BestBidPrice > 0 {
		snap.Bids = upsertBid(snap.Bids, ev.BestBidPrice, ev.BestBidQty)
	}
	if ev.BestAskPrice > 0 {
		snap.Asks = upsertAsk(snap.Asks, ev.BestAskPrice, ev.BestAskQty)
	}

	b.dropCrossedLocked(s.logger)
	b.refreshTopLocked()
	snap.LastUpdateID = ev.UpdateID
	snap.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyDepthUpdate applies a batch of level deltas. Stale events are a
// silent no-op. A sequence gap on a previously synced book invalidates it:
// the book enters the resync-required state and domain.ErrResyncRequired is
// returned so the caller can fetch a fresh full snapshot. While resync is
// pending, further depth updates are refused with the same error.
func (s *Store) ApplyDepthUpdate(ev domain.DepthUpdate) error {
	if ev.Symbol == "" {
		return fmt.Errorf("book: apply depth update: empty symbol")
	}
	b := s.get(ev.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.FinalUpdateID <= b.snap.LastUpdateID {
		return nil
	}
	if b.needResync {
		return fmt.Errorf("book: %s resync pending: %w", ev.Symbol, domain.ErrResyncRequired)
	}
	if b.snap.LastUpdateID > 0 && ev.FirstUpdateID > b.snap.LastUpdateID+1 {
		b.needResync = true
		s.logger.Warn("depth sequence gap, book invalidated",
			slog.String("symbol", ev.Symbol),
			slog.Int64("last_update_id", b.snap.LastUpdateID),
			slog.Int64("first_update_id", ev.FirstUpdateID),
		)
		return fmt.Errorf("book: %s sequence gap: %w", ev.Symbol, domain.ErrResyncRequired)
	}

	snap := &b.snap
	for _, d := range ev.BidDeltas {
		if d.Quantity == 0 {
			snap.Bids = removeLevel(snap.Bids, d.Price)
			continue
		}
		snap.Bids = upsertBid(snap.Bids, d.Price, d.Quantity)
		// A bid at or above an existing ask means the crossed ask levels
		// are stale; the newest write wins.
		snap.Asks = trimBelowOrEqual(snap.Asks, d.Price)
	}
	for _, d := range ev.AskDeltas {
		if d.Quantity == 0 {
			snap.Asks = removeLevel(snap.Asks, d.Price)
			continue
		}
		snap.Asks = upsertAsk(snap.Asks, d.Price, d.Quantity)
		snap.Bids = trimAboveOrEqual(snap.Bids, d.Price)
	}

	b.dropCrossedLocked(s.logger)
	b.refreshTopLocked()
	snap.LastUpdateID = ev.FinalUpdateID
	snap.UpdatedAt = time.Now().UTC()
	return nil
}

// Snapshot returns a deep copy of the symbol's book. It never blocks the
// writer longer than the copy takes and never exposes a partially applied
// update.
func (s *Store) Snapshot(symbol string) (domain.OrderBookSnapshot, error) {
	s.mu.RLock()
	b, ok := s.books[symbol]
	s.mu.RUnlock()
	if !ok {
		return domain.OrderBookSnapshot{}, fmt.Errorf("book: snapshot %s: %w", symbol, domain.ErrUnknownSymbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.snap
	out.Bids = append([]domain.PriceLevel(nil), b.snap.Bids...)
	out.Asks = append([]domain.PriceLevel(nil), b.snap.Asks...)
	return out, nil
}

// NeedsResync reports whether the symbol's book is awaiting a full snapshot.
func (s *Store) NeedsResync(symbol string) bool {
	s.mu.RLock()
	b, ok := s.books[symbol]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.needResync
}

// Rebuild installs a fresh full snapshot for the symbol and clears the
// resync flag. Levels are sorted and deduplicated defensively since they
// come from an external REST response.
func (s *Store) Rebuild(symbol string, bids, asks []domain.PriceLevel, lastUpdateID int64) {
	b := s.get(symbol)

	sorted := func(levels []domain.PriceLevel, desc bool) []domain.PriceLevel {
		out := append([]domain.PriceLevel(nil), levels...)
		sort.Slice(out, func(i, j int) bool {
			if desc {
				return out[i].Price > out[j].Price
			}
			return out[i].Price < out[j].Price
		})
		dedup := out[:0]
		for i, lvl := range out {
			if lvl.Quantity == 0 || (i > 0 && lvl.Price == out[i-1].Price) {
				continue
			}
			dedup = append(dedup, lvl)
		}
		return dedup
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = domain.OrderBookSnapshot{
		Symbol:       symbol,
		Bids:         sorted(bids, true),
		Asks:         sorted(asks, false),
		LastUpdateID: lastUpdateID,
		UpdatedAt:    time.Now().UTC(),
	}
	b.dropCrossedLocked(s.logger)
	b.refreshTopLocked()
	b.needResync = false
	s.logger.Info("book rebuilt from full snapshot",
		slog.String("symbol", symbol),
		slog.Int64("last_update_id", lastUpdateID),
	)
}

// dropCrossedLocked enforces best_bid < best_ask by dropping crossed ask
// levels. Caller holds the book lock.
func (b *symbolBook) dropCrossedLocked(logger *slog.Logger) {
	for len(b.snap.Bids) > 0 && len(b.snap.Asks) > 0 &&
		b.snap.Bids[0].Price >= b.snap.Asks[0].Price {
		logger.Warn("crossed book, dropping stale ask level",
			slog.String("symbol", b.snap.Symbol),
			slog.Float64("best_bid", b.snap.Bids[0].Price),
			slog.Float64("best_ask", b.snap.Asks[0].Price),
		)
		b.snap.Asks = b.snap.Asks[1:]
	}
}

// refreshTopLocked recomputes the cached top-of-book. Caller holds the lock.
func (b *symbolBook) refreshTopLocked() {
	if len(b.snap.Bids) > 0 {
		b.snap.BestBid = b.snap.Bids[0]
	} else {
		b.snap.BestBid = domain.PriceLevel{}
	}
	if len(b.snap.Asks) > 0 {
		b.snap.BestAsk = b.snap.Asks[0]
	} else {
		b.snap.BestAsk = domain.PriceLevel{}
	}
}

// ---------------------------------------------------------------------------
// Sorted-level helpers. Bids descend, asks ascend, prices unique per side.
// ---------------------------------------------------------------------------

func upsertBid(levels []domain.PriceLevel, price, qty float64) []domain.PriceLevel {
	i := sort.Search(len(levels), func(i int) bool { return levels[i].Price <= price })
	if i < len(levels) && levels[i].Price == price {
		levels[i].Quantity = qty
		return levels
	}
	levels = append(levels, domain.PriceLevel{})
	copy(levels[i+1:], levels[i:])
	levels[i] = domain.PriceLevel{Price: price, Quantity: qty}
	return levels
}

func upsertAsk(levels []domain.PriceLevel, price, qty float64) []domain.PriceLevel {
	i := sort.Search(len(levels), func(i int) bool { return levels[i].Price >= price })
	if i < len(levels) && levels[i].Price == price {
		levels[i].Quantity = qty
		return levels
	}
	levels = append(levels, domain.PriceLevel{})
	copy(levels[i+1:], levels[i:])
	levels[i] = domain.PriceLevel{Price: price, Quantity: qty}
	return levels
}

func removeLevel(levels []domain.PriceLevel, price float64) []domain.PriceLevel {
	for i, lvl := range levels {
		if lvl.Price == price {
			return append(levels[:i], levels[i+1:]...)
		}
	}
	return levels
}

// trimAbove drops bids with a price strictly above limit.
func trimAbove(bids []domain.PriceLevel, limit float64) []domain.PriceLevel {
	if limit <= 0 {
		return bids
	}
	for len(bids) > 0 && bids[0].Price > limit {
		bids = bids[1:]
	}
	return bids
}

// trimAboveOrEqual drops bids at or above limit.
func trimAboveOrEqual(bids []domain.PriceLevel, limit float64) []domain.PriceLevel {
	for len(bids) > 0 && bids[0].Price >= limit {
		bids = bids[1:]
	}
	return bids
}

// trimBelow drops asks with a price strictly below limit.
func trimBelow(asks []domain.PriceLevel, limit float64) []domain.PriceLevel {
	if limit <= 0 {
		return asks
	}
	for len(asks) > 0 && asks[0].Price < limit {
		asks = asks[1:]
	}
	return asks
}

// trimBelowOrEqual drops asks at or below limit.
func trimBelowOrEqual(asks []domain.PriceLevel, limit float64) []domain.PriceLevel {
	for len(asks) > 0 && asks[0].Price <= limit {
		asks = asks[1:]
	}
	return asks
}
