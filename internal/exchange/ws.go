// ws.go implements WebSocket transport for real-time Polymarket data.
//
// Two independent feeds run concurrently:
//
//   - Market feed (public): subscribes by asset ID (token ID), receives
//     "book" snapshots and "price_change" deltas for the order book, in the
//     legacy flat event_type wire schema.
//
//   - User feed (authenticated): subscribes by condition ID, receives
//     "trade" fills and "order" lifecycle events (placement, cancellation),
//     also in the legacy schema.
//
// Both feeds auto-reconnect after a fixed 5s delay and re-subscribe to all
// tracked IDs on reconnection. A read deadline (90s) ensures silent server
// failures are detected within ~2 missed pings. Every frame, PONG replies
// included, is forwarded, unparsed, into the shared internal/events.Processor — WSFeed
// itself does no schema decoding; that's the Event Processor's job, so every
// asset's frames are handled in the single order they were read in.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-mm/internal/events"
	"polymarket-mm/pkg/types"
)

const (
	pingInterval   = 50 * time.Second // how often we send PING to keep alive
	readTimeout    = 90 * time.Second // ~2 missed pings triggers reconnect
	reconnectDelay = 5 * time.Second  // fixed reconnect delay (spec.md §4.5)
	writeTimeout   = 10 * time.Second // deadline for outgoing messages
)

// WSFeed manages a single WebSocket connection (market or user channel).
// It handles connection lifecycle, subscription tracking, raw message
// forwarding, and automatic reconnection after a fixed delay.
type WSFeed struct {
	url      string
	conn     *websocket.Conn
	connMu   sync.Mutex // protects conn reads/writes
	auth     *Auth      // nil for market channel, set for user channel
	listener events.Listener

	// Track subscriptions for automatic re-subscribe on reconnect
	subscribedMu sync.RWMutex
	subscribed   map[string]bool // asset IDs (market) or condition IDs (user)

	sender events.CountingSender

	logger *slog.Logger
}

// NewMarketFeed creates a WebSocket feed for the market channel (public),
// forwarding frames into sender tagged as PolyMarketLegacy.
func NewMarketFeed(wsURL string, sender events.CountingSender, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:        wsURL,
		listener:   events.PolyMarketLegacy,
		subscribed: make(map[string]bool),
		sender:     sender,
		logger:     logger.With("component", "ws_market"),
	}
}

// NewUserFeed creates a WebSocket feed for the user channel (authenticated),
// forwarding frames into sender tagged as PolyUserLegacy.
func NewUserFeed(wsURL string, auth *Auth, sender events.CountingSender, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:        wsURL,
		auth:       auth,
		listener:   events.PolyUserLegacy,
		subscribed: make(map[string]bool),
		sender:     sender,
		logger:     logger.With("component", "ws_user"),
	}
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"delay", reconnectDelay,
		)
		f.emitClear()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// Subscribe adds asset IDs (market channel) or condition IDs (user channel).
func (f *WSFeed) Subscribe(ctx context.Context, ids []string) error {
	f.subscribedMu.Lock()
	for _, id := range ids {
		f.subscribed[id] = true
	}
	f.subscribedMu.Unlock()

	msg := types.WSUpdateMsg{
		Operation: "subscribe",
	}
	if f.listener.IsMarket() {
		msg.AssetIDs = ids
	} else {
		msg.Markets = ids
	}

	return f.writeJSON(msg)
}

// Unsubscribe removes IDs from the subscription.
func (f *WSFeed) Unsubscribe(ctx context.Context, ids []string) error {
	f.subscribedMu.Lock()
	for _, id := range ids {
		delete(f.subscribed, id)
	}
	f.subscribedMu.Unlock()

	msg := types.WSUpdateMsg{
		Operation: "unsubscribe",
	}
	if f.listener.IsMarket() {
		msg.AssetIDs = ids
	} else {
		msg.Markets = ids
	}

	return f.writeJSON(msg)
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected", "listener", f.listener.String())

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.forward(msg)
	}
}

func (f *WSFeed) sendInitialSubscription() error {
	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()

	if f.listener.IsMarket() {
		msg := types.WSSubscribeMsg{
			Type:     "market",
			AssetIDs: ids,
		}
		return f.writeJSON(msg)
	}

	// User channel requires auth
	msg := types.WSSubscribeMsg{
		Type:    "user",
		Auth:    f.auth.WSAuthPayload(),
		Markets: ids,
	}
	return f.writeJSON(msg)
}

// emitClear sends a Clear event naming every asset/condition id this feed was
// responsible for, so strategies never read stale book or order state across
// a reconnect (spec.md §4.5, §8 scenario 4). The market feed always has at
// least its own listener's clear semantics; the user feed reuses the same
// event kind since a resubscribed user channel can also miss order/trade
// frames during the drop.
func (f *WSFeed) emitClear() {
	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()

	if len(ids) == 0 {
		return
	}
	f.sender.Send(events.Event{Kind: events.KindMarketClear, Listener: f.listener, AssetIDs: ids})
}

// forward hands the raw frame to the shared Event Processor. WSFeed does
// not decode it: internal/events picks legacy-vs-new schema per listener
// and parses into the typed payloads strategies consume.
func (f *WSFeed) forward(data []byte) {
	if len(data) == 0 {
		return
	}
	kind := events.KindMarketMessage
	if f.listener.IsUser() {
		kind = events.KindUserMessage
	}
	if ok := f.sender.TrySend(events.Event{Kind: kind, Listener: f.listener, Raw: data}); !ok {
		f.logger.Warn("event processor channel full, dropping frame", "listener", f.listener.String())
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
