package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// streamEnvelope is the combined-stream wrapper: every frame carries the
// stream name and the raw event payload.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// bookTickerMessage mirrors the <symbol>@bookTicker payload. All prices and
// quantities arrive as decimal strings.
type bookTickerMessage struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// depthUpdateMessage mirrors the <symbol>@depth payload.
type depthUpdateMessage struct {
	EventType     string      `json:"e"`
	EventTime     int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

// parseStreamMessage decodes one combined-stream frame into a MarketEvent.
// Frames from unrecognized streams or with malformed payloads return an
// error; the caller drops them without tearing the connection down.
func parseStreamMessage(raw []byte) (domain.MarketEvent, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: decode envelope: %w", err)
	}

	switch {
	case strings.HasSuffix(env.Stream, "@bookTicker"):
		var msg bookTickerMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return domain.MarketEvent{}, fmt.Errorf("feed: decode book ticker: %w", err)
		}
		return bookTickerEvent(msg)
	case strings.Contains(env.Stream, "@depth"):
		var msg depthUpdateMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return domain.MarketEvent{}, fmt.Errorf("feed: decode depth update: %w", err)
		}
		return depthUpdateEvent(msg)
	default:
		return domain.MarketEvent{}, fmt.Errorf("feed: unrecognized stream %q", env.Stream)
	}
}

func bookTickerEvent(msg bookTickerMessage) (domain.MarketEvent, error) {
	if msg.Symbol == "" {
		return domain.MarketEvent{}, fmt.Errorf("feed: book ticker missing symbol")
	}
	bidPx, err := parseDecimal(msg.BidPrice)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: book ticker bid price: %w", err)
	}
	bidQty, err := parseDecimal(msg.BidQty)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: book ticker bid qty: %w", err)
	}
	askPx, err := parseDecimal(msg.AskPrice)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: book ticker ask price: %w", err)
	}
	askQty, err := parseDecimal(msg.AskQty)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: book ticker ask qty: %w", err)
	}
	return domain.MarketEvent{
		Kind: domain.EventBookTicker,
		BookTicker: &domain.BookTicker{
			Symbol:       msg.Symbol,
			BestBidPrice: bidPx,
			BestBidQty:   bidQty,
			BestAskPrice: askPx,
			BestAskQty:   askQty,
			UpdateID:     msg.UpdateID,
		},
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func depthUpdateEvent(msg depthUpdateMessage) (domain.MarketEvent, error) {
	if msg.Symbol == "" {
		return domain.MarketEvent{}, fmt.Errorf("feed: depth update missing symbol")
	}
	bids, err := parseDeltas(msg.Bids)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: depth update bids: %w", err)
	}
	asks, err := parseDeltas(msg.Asks)
	if err != nil {
		return domain.MarketEvent{}, fmt.Errorf("feed: depth update asks: %w", err)
	}
	return domain.MarketEvent{
		Kind: domain.EventDepthUpdate,
		DepthUpdate: &domain.DepthUpdate{
			Symbol:        msg.Symbol,
			FirstUpdateID: msg.FirstUpdateID,
			FinalUpdateID: msg.FinalUpdateID,
			BidDeltas:     bids,
			AskDeltas:     asks,
		},
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func parseDeltas(raw [][2]string) ([]domain.PriceDelta, error) {
	out := make([]domain.PriceDelta, 0, len(raw))
	for _, pair := range raw {
		price, err := parseDecimal(pair[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair[0], err)
		}
		qty, err := parseDecimal(pair[1])
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", pair[1], err)
		}
		out = append(out, domain.PriceDelta{Price: price, Quantity: qty})
	}
	return out, nil
}

func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty decimal")
	}
	return strconv.ParseFloat(s, 64)
}
