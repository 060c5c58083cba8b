package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// signalStream is the Redis stream that carries emitted trading signals.
const signalStream = "signals"

// streamMaxLen bounds the stream via XADD MAXLEN ~ so it never grows
// without limit.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus on a Redis stream, giving external
// consumers durable, ordered delivery of emitted signals.
type SignalBus struct {
	rdb *redis.Client
}

var _ domain.SignalBus = (*SignalBus)(nil)

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// PublishSignal appends the signal to the stream.
func (sb *SignalBus) PublishSignal(ctx context.Context, sig domain.TradingSignal) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: signalStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"id":           sig.ID,
			"symbol":       sig.Symbol,
			"direction":    string(sig.Direction),
			"strength":     sig.Strength,
			"generated_at": sig.GeneratedAt.UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: publish signal %s: %w", sig.ID, err)
	}
	return nil
}

// ReadSignals reads up to count signals after the given stream ID, blocking
// until at least one arrives or ctx ends. Use "0" to read from the start
// and "$" for new signals only. It returns the signals and the last stream
// ID to resume from.
func (sb *SignalBus) ReadSignals(ctx context.Context, afterID string, count int64) ([]domain.TradingSignal, string, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{signalStream, afterID},
		Count:   count,
		Block:   0,
	}).Result()
	if err != nil {
		return nil, afterID, fmt.Errorf("redis: read signals: %w", err)
	}

	var out []domain.TradingSignal
	lastID := afterID
	for _, stream := range res {
		for _, msg := range stream.Messages {
			sig, err := signalFromValues(msg.Values)
			if err != nil {
				return nil, lastID, err
			}
			out = append(out, sig)
			lastID = msg.ID
		}
	}
	return out, lastID, nil
}

func signalFromValues(values map[string]any) (domain.TradingSignal, error) {
	var sig domain.TradingSignal
	str := func(name string) string {
		if v, ok := values[name].(string); ok {
			return v
		}
		return ""
	}

	sig.ID = str("id")
	sig.Symbol = str("symbol")
	sig.Direction = domain.SignalDirection(str("direction"))

	strength, err := strconv.ParseFloat(str("strength"), 64)
	if err != nil {
		return domain.TradingSignal{}, fmt.Errorf("redis: decode signal strength: %w", err)
	}
	sig.Strength = strength

	millis, err := strconv.ParseInt(str("generated_at"), 10, 64)
	if err != nil {
		return domain.TradingSignal{}, fmt.Errorf("redis: decode signal timestamp: %w", err)
	}
	sig.GeneratedAt = time.UnixMilli(millis).UTC()
	return sig, nil
}
