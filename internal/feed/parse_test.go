package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/microarb/internal/domain"
)

func TestParseBookTickerFrame(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@bookTicker",
		"data": {
			"u": 400900217,
			"s": "BTCUSDT",
			"b": "100.50",
			"B": "31.21",
			"a": "100.60",
			"A": "40.66"
		}
	}`)

	ev, err := parseStreamMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.EventBookTicker, ev.Kind)
	require.NotNil(t, ev.BookTicker)
	assert.Equal(t, "BTCUSDT", ev.BookTicker.Symbol)
	assert.Equal(t, int64(400900217), ev.BookTicker.UpdateID)
	assert.Equal(t, 100.50, ev.BookTicker.BestBidPrice)
	assert.Equal(t, 31.21, ev.BookTicker.BestBidQty)
	assert.Equal(t, 100.60, ev.BookTicker.BestAskPrice)
	assert.Equal(t, 40.66, ev.BookTicker.BestAskQty)
}

func TestParseDepthUpdateFrame(t *testing.T) {
	raw := []byte(`{
		"stream": "btcusdt@depth@100ms",
		"data": {
			"e": "depthUpdate",
			"E": 1672515782136,
			"s": "BTCUSDT",
			"U": 157,
			"u": 160,
			"b": [["100.10", "5"], ["100.00", "0"]],
			"a": [["100.20", "12.5"]]
		}
	}`)

	ev, err := parseStreamMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.EventDepthUpdate, ev.Kind)
	require.NotNil(t, ev.DepthUpdate)
	assert.Equal(t, "BTCUSDT", ev.DepthUpdate.Symbol)
	assert.Equal(t, int64(157), ev.DepthUpdate.FirstUpdateID)
	assert.Equal(t, int64(160), ev.DepthUpdate.FinalUpdateID)
	require.Len(t, ev.DepthUpdate.BidDeltas, 2)
	assert.Equal(t, domain.PriceDelta{Price: 100.10, Quantity: 5}, ev.DepthUpdate.BidDeltas[0])
	assert.Equal(t, domain.PriceDelta{Price: 100.00, Quantity: 0}, ev.DepthUpdate.BidDeltas[1])
	require.Len(t, ev.DepthUpdate.AskDeltas, 1)
}

func TestParseMalformedFrames(t *testing.T) {
	cases := map[string][]byte{
		"not json":          []byte(`{{{`),
		"unknown stream":    []byte(`{"stream":"btcusdt@trade","data":{}}`),
		"missing symbol":    []byte(`{"stream":"btcusdt@bookTicker","data":{"u":1,"b":"1","B":"1","a":"1","A":"1"}}`),
		"garbage price":     []byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","u":1,"b":"abc","B":"1","a":"1","A":"1"}}`),
		"garbage depth qty": []byte(`{"stream":"btcusdt@depth@100ms","data":{"s":"BTCUSDT","U":1,"u":2,"b":[["1.0","x"]],"a":[]}}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseStreamMessage(raw)
			assert.Error(t, err)
		})
	}
}

func TestDepthSnapshotFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{
			"lastUpdateId": 1027024,
			"bids": [["100.10", "5"], ["100.00", "3"]],
			"asks": [["100.20", "2"]]
		}`))
	}))
	defer srv.Close()

	snap, err := NewSnapshotClient(srv.URL, 50).DepthSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, int64(1027024), snap.LastUpdateID)
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, domain.PriceLevel{Price: 100.10, Quantity: 5}, snap.Bids[0])
	require.Len(t, snap.Asks, 1)
}

func TestDepthSnapshotHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewSnapshotClient(srv.URL, 50).DepthSnapshot(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}
