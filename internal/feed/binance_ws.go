// Package feed connects the exchange's market-data endpoints to the
// engine: a combined-stream WebSocket client for live events and a REST
// depth client used to rebuild an invalidated book.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/microarb/internal/domain"
)

const (
	// writeWait bounds control-frame writes to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for the peer's next pong; reads time
	// out past it and the connection is considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// WSFeed subscribes to <sym>@bookTicker and <sym>@depth@100ms for every
// configured symbol over one combined-stream connection and forwards the
// decoded events to its output channel. It reconnects with exponential
// backoff; sequencing across a reconnect is healed by the book's resync
// path, not by the feed.
type WSFeed struct {
	baseURL string
	symbols []string
	out     chan<- domain.MarketEvent
	logger  *slog.Logger
}

// NewWSFeed creates a feed for the given stream base URL, e.g.
// "wss://stream.binance.com:9443".
func NewWSFeed(baseURL string, symbols []string, out chan<- domain.MarketEvent, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		baseURL: baseURL,
		symbols: symbols,
		out:     out,
		logger:  logger.With(slog.String("component", "ws_feed")),
	}
}

// Run connects and pumps events until ctx is cancelled. The output channel
// is closed on return so the engine drains and shuts down cleanly.
func (f *WSFeed) Run(ctx context.Context) error {
	defer close(f.out)

	if len(f.symbols) == 0 {
		f.logger.Info("no symbols configured, feed exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that lived for a while resets the backoff.
		if time.Since(start) > time.Minute {
			delay = reconnectDelay
		}
		f.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	f.logger.Info("stream connected",
		slog.Int("symbols", len(f.symbols)),
		slog.String("url", f.baseURL),
	)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// The server also pings us; answer or it drops the connection.
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(payload))
	})

	// Close the connection when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()
	go f.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		ev, err := parseStreamMessage(raw)
		if err != nil {
			f.logger.Warn("malformed frame skipped", slog.String("error", err.Error()))
			continue
		}
		select {
		case f.out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *WSFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamURL builds the combined-stream URL:
// <base>/stream?streams=btcusdt@bookTicker/btcusdt@depth@100ms/...
func (f *WSFeed) streamURL() string {
	streams := make([]string, 0, len(f.symbols)*2)
	for _, s := range f.symbols {
		lower := strings.ToLower(s)
		streams = append(streams, lower+"@bookTicker", lower+"@depth@100ms")
	}
	return f.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}
