package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// SnapshotClient fetches full depth snapshots over REST, used by the
// engine to rebuild a book after a sequence gap.
type SnapshotClient struct {
	baseURL string
	depth   int
	client  *http.Client
}

// NewSnapshotClient creates a client for the given REST base URL, e.g.
// "https://api.binance.com". depth is the number of levels per side.
func NewSnapshotClient(baseURL string, depth int) *SnapshotClient {
	if depth <= 0 {
		depth = 100
	}
	return &SnapshotClient{
		baseURL: baseURL,
		depth:   depth,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// DepthSnapshot fetches the current full book for a symbol.
func (c *SnapshotClient) DepthSnapshot(ctx context.Context, symbol string) (domain.OrderBookSnapshot, error) {
	u := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		c.baseURL, url.QueryEscape(symbol), c.depth)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("feed: depth request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("feed: depth fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.OrderBookSnapshot{}, fmt.Errorf("feed: depth fetch %s: status %d", symbol, resp.StatusCode)
	}

	var body depthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("feed: decode depth response: %w", err)
	}

	bids, err := parseLevels(body.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("feed: depth bids %s: %w", symbol, err)
	}
	asks, err := parseLevels(body.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("feed: depth asks %s: %w", symbol, err)
	}

	return domain.OrderBookSnapshot{
		Symbol:       symbol,
		Bids:         bids,
		Asks:         asks,
		LastUpdateID: body.LastUpdateID,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

func parseLevels(raw [][2]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair[0], err)
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", pair[1], err)
		}
		out = append(out, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return out, nil
}
