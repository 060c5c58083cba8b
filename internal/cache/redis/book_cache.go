package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// topTTL expires stale entries so a dashboard never renders a top-of-book
// from a dead process.
const topTTL = 30 * time.Second

// BookTopCache implements domain.BookTopCache on a hash per symbol.
//
// Key schema:
//
//	book:{symbol}:top - hash with bid_price, bid_qty, ask_price, ask_qty,
//	                    updated_at (unix milliseconds)
type BookTopCache struct {
	rdb *redis.Client
}

var _ domain.BookTopCache = (*BookTopCache)(nil)

// NewBookTopCache creates a BookTopCache backed by the given Client.
func NewBookTopCache(c *Client) *BookTopCache {
	return &BookTopCache{rdb: c.Underlying()}
}

func topKey(symbol string) string { return "book:" + symbol + ":top" }

// SetTop publishes the snapshot's best bid and ask.
func (bc *BookTopCache) SetTop(ctx context.Context, symbol string, snap domain.OrderBookSnapshot) error {
	key := topKey(symbol)
	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"bid_price":  snap.BestBid.Price,
		"bid_qty":    snap.BestBid.Quantity,
		"ask_price":  snap.BestAsk.Price,
		"ask_qty":    snap.BestAsk.Quantity,
		"updated_at": snap.UpdatedAt.UnixMilli(),
	})
	pipe.Expire(ctx, key, topTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set top %s: %w", symbol, err)
	}
	return nil
}

// GetTop reads the cached best bid and ask for a symbol. A missing key
// returns domain.ErrNotFound.
func (bc *BookTopCache) GetTop(ctx context.Context, symbol string) (domain.PriceLevel, domain.PriceLevel, error) {
	fields, err := bc.rdb.HGetAll(ctx, topKey(symbol)).Result()
	if err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("redis: get top %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("redis: get top %s: %w", symbol, domain.ErrNotFound)
	}

	parse := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(fields[name], 64)
		if err != nil {
			return 0, fmt.Errorf("redis: get top %s: field %s: %w", symbol, name, err)
		}
		return v, nil
	}

	var bid, ask domain.PriceLevel
	if bid.Price, err = parse("bid_price"); err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, err
	}
	if bid.Quantity, err = parse("bid_qty"); err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, err
	}
	if ask.Price, err = parse("ask_price"); err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, err
	}
	if ask.Quantity, err = parse("ask_qty"); err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, err
	}
	return bid, ask, nil
}
