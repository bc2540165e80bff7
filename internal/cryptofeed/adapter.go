// Package cryptofeed adapts third-party crypto exchange WebSocket feeds into
// the Event Processor's crypto event kinds (KindCryptoPrice,
// KindCryptoL2Snapshot, KindCryptoL2Update, KindCryptoPriceClear).
//
// Grounded on original_source/src/exchange_listeners/crypto_listeners.rs's
// websocket_handler: one generic connect-subscribe-read loop parameterized
// by a per-exchange parse closure, reused across all exchange adapters
// rather than duplicating connection handling per exchange.
package cryptofeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-mm/internal/events"
)

const (
	pingInterval   = 30 * time.Second // matches the reference's proactive-ping cadence
	reconnectDelay = 5 * time.Second  // matches the reference's fixed reconnect delay
	dialTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
)

// parseFunc turns one text frame into zero or more processor events. It
// returns ok=false when the frame carried no price/book update (e.g. a
// subscription ack or heartbeat), which is not an error.
type parseFunc func(frame []byte) (ev events.Event, ok bool, err error)

// Adapter runs a single exchange/instrument/symbol WebSocket connection,
// forwarding parsed updates into an events.CountingSender and emitting a
// KindCryptoPriceClear event whenever the connection drops, so strategies
// never act on a stale quote from a dead feed.
type Adapter struct {
	name         string
	url          string
	subscribeMsg string // empty: no message is sent after connecting
	clearEvent   events.Event
	parse        parseFunc
	sender       events.CountingSender
	logger       *slog.Logger
}

// NewAdapter builds an Adapter. clearEvent is sent (Kind KindCryptoPriceClear)
// each time the connection drops or a connection attempt fails, before the
// reconnect delay, so downstream state never holds a quote from a previous,
// possibly stale, session. No clear is sent before the first connection.
func NewAdapter(name, url, subscribeMsg string, clearEvent events.Event, parse parseFunc, sender events.CountingSender, logger *slog.Logger) *Adapter {
	return &Adapter{
		name:         name,
		url:          url,
		subscribeMsg: subscribeMsg,
		clearEvent:   clearEvent,
		parse:        parse,
		sender:       sender,
		logger:       logger.With("listener", name),
	}
}

// Run connects and maintains the WebSocket connection until ctx is
// cancelled, reconnecting on any error after a fixed delay. It never
// returns early on a recoverable error; it only returns when ctx is done.
func (a *Adapter) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.runOnce(ctx); err != nil {
			a.logger.Warn("listener down, clearing price and reconnecting", "error", err, "delay", reconnectDelay)
		}
		a.sender.Send(a.clearEvent)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (a *Adapter) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, a.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if a.subscribeMsg != "" {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(a.subscribeMsg)); err != nil {
			return err
		}
	}

	conn.SetPongHandler(func(string) error { return nil })

	msgCh := make(chan []byte, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(msgCh)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			msgCh <- data
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, open := <-msgCh:
			if !open {
				return <-errCh
			}
			ev, ok, err := a.parse(data)
			if err != nil {
				a.logger.Debug("frame parse error", "error", err)
				continue
			}
			if !ok {
				continue
			}
			if !a.sender.Send(ev) {
				a.logger.Error("failed to forward price event, stopping listener")
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
