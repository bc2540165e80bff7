package strategy

import (
	"log/slog"
	"time"

	ibook "polymarket-mm/internal/book"
	"polymarket-mm/internal/events"
	"polymarket-mm/internal/lifecycle"
	"polymarket-mm/pkg/types"
)

// BookSource resolves the order book engine for an asset id. Satisfied by
// internal/market.Book and by test doubles.
type BookSource interface {
	BookFor(assetID string) *ibook.Book
}

// Context is the read/write surface handed to every Strategy callback. It
// wraps the per-asset order books and the order lifecycle manager so a
// strategy never touches transport or wire-format details directly.
//
// Grounded on original_source/src/strategies/strategy.rs's StrategyContext,
// which wraps Arc<AppState> and Arc<PolyMarketState>.
type Context struct {
	Books     BookSource
	Lifecycle *lifecycle.Manager
	Logger    *slog.Logger
}

// NewContext builds a Context over the given book source and lifecycle manager.
func NewContext(books BookSource, lc *lifecycle.Manager, logger *slog.Logger) *Context {
	return &Context{Books: books, Lifecycle: lc, Logger: logger}
}

// PlaceLimitOrder registers a non-blocking intent to place a resting order.
// It returns immediately after recording the Unconfirmed intent;
// internal/lifecycle.Manager dispatches the signed order on its own
// goroutine and binds the exchange id asynchronously.
func (c *Context) PlaceLimitOrder(assetID string, side types.Side, price, size float64, tickSize types.TickSize, negRisk bool) error {
	order := types.UserOrder{
		TokenID:   assetID,
		Price:     price,
		Size:      size,
		Side:      side,
		OrderType: types.OrderTypeGTC,
		TickSize:  tickSize,
	}
	return c.Lifecycle.RequestPlace(assetID, side, price, size, tickSize, negRisk, order)
}

// CancelOrders requests cancellation of the given order intents. Non-blocking.
func (c *Context) CancelOrders(assetID string, side types.Side, price, size float64) error {
	return c.Lifecycle.RequestCancel(assetID, side, price, size)
}

// Position returns the current signed position for assetID.
func (c *Context) Position(assetID string) types.Position {
	return c.Lifecycle.Position(assetID)
}

// ActiveOrders returns the locally tracked intents for assetID on the given
// side (Unconfirmed, Live, or ToBeCanceled), with prices and sizes in
// int-millis (value × 1000).
func (c *Context) ActiveOrders(assetID string, side types.Side) []lifecycle.Intent {
	return c.Lifecycle.ListIntents(assetID, side)
}

// BestBid returns the best bid level for assetID in human decimal units.
func (c *Context) BestBid(assetID string) (price, size float64, ok bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return 0, 0, false
	}
	lvl, found := b.BestBid()
	if !found {
		return 0, 0, false
	}
	return float64(lvl.PriceMillis) / 1000, float64(lvl.SizeMillis) / 1000, true
}

// BestAsk returns the best ask level for assetID in human decimal units.
func (c *Context) BestAsk(assetID string) (price, size float64, ok bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return 0, 0, false
	}
	lvl, found := b.BestAsk()
	if !found {
		return 0, 0, false
	}
	return float64(lvl.PriceMillis) / 1000, float64(lvl.SizeMillis) / 1000, true
}

// BestFeasibleBid returns the best depth-truncated bid for assetID.
func (c *Context) BestFeasibleBid(assetID string) (price, size float64, ok bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return 0, 0, false
	}
	lvl, found := b.BestFeasibleBid()
	if !found {
		return 0, 0, false
	}
	return float64(lvl.PriceMillis) / 1000, float64(lvl.SizeMillis) / 1000, true
}

// BestFeasibleAsk returns the best depth-truncated ask for assetID.
func (c *Context) BestFeasibleAsk(assetID string) (price, size float64, ok bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return 0, 0, false
	}
	lvl, found := b.BestFeasibleAsk()
	if !found {
		return 0, 0, false
	}
	return float64(lvl.PriceMillis) / 1000, float64(lvl.SizeMillis) / 1000, true
}

// Midpoint returns the midpoint price for assetID in human decimal units.
func (c *Context) Midpoint(assetID string) (float64, bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return 0, false
	}
	mid, ok := b.Midpoint()
	if !ok {
		return 0, false
	}
	return float64(mid) / 1000, true
}

// Spread returns the bid/ask spread for assetID in human decimal units.
func (c *Context) Spread(assetID string) (float64, bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return 0, false
	}
	spread, ok := b.Spread()
	if !ok {
		return 0, false
	}
	return float64(spread) / 1000, true
}

// TickSize returns the tick size currently tracked for assetID.
func (c *Context) TickSize(assetID string) (types.TickSize, bool) {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return "", false
	}
	return b.TickSize(), true
}

// IsStale reports whether assetID's book hasn't been updated within maxAge,
// or has no book at all yet.
func (c *Context) IsStale(assetID string, maxAge time.Duration) bool {
	b := c.Books.BookFor(assetID)
	if b == nil {
		return true
	}
	return b.IsStale(maxAge)
}

// Strategy is the callback surface a strategy implements. Every method has a
// no-op default via EmbeddableStrategy so a concrete strategy need only
// override the hooks it cares about — mirroring the reference trait's
// default-method pattern.
type Strategy interface {
	OnMarketAggOrderbook(ctx *Context, listener events.Listener, snapshot *types.AggOrderbookPayload)
	OnMarketPriceChange(ctx *Context, listener events.Listener, change *types.PriceChangeItem)
	OnMarketTickSizeChange(ctx *Context, listener events.Listener, change *types.TickSizeChangePayload)
	OnMarketPong(ctx *Context, listener events.Listener)
	OnMarketClear(ctx *Context, listener events.Listener, assetIDs []string)
	OnUserPong(ctx *Context, listener events.Listener)
	OnUserTrade(ctx *Context, listener events.Listener, trade *types.TradePayload)
	OnUserOrder(ctx *Context, listener events.Listener, order *types.UserOrderEvent)
	OnCryptoPriceUpdate(ctx *Context, ev events.Event)
	OnCryptoL2Snapshot(ctx *Context, ev events.Event)
	OnCryptoL2Update(ctx *Context, ev events.Event)
	OnCryptoPriceClear(ctx *Context, ev events.Event)
}

// EmbeddableStrategy supplies a no-op body for every Strategy method. A
// concrete strategy embeds it and overrides only the callbacks it needs.
type EmbeddableStrategy struct{}

func (EmbeddableStrategy) OnMarketAggOrderbook(*Context, events.Listener, *types.AggOrderbookPayload) {
}
func (EmbeddableStrategy) OnMarketPriceChange(*Context, events.Listener, *types.PriceChangeItem) {}
func (EmbeddableStrategy) OnMarketTickSizeChange(*Context, events.Listener, *types.TickSizeChangePayload) {
}
func (EmbeddableStrategy) OnMarketPong(*Context, events.Listener)                   {}
func (EmbeddableStrategy) OnMarketClear(*Context, events.Listener, []string)        {}
func (EmbeddableStrategy) OnUserPong(*Context, events.Listener)                     {}
func (EmbeddableStrategy) OnUserTrade(*Context, events.Listener, *types.TradePayload) {}
func (EmbeddableStrategy) OnUserOrder(*Context, events.Listener, *types.UserOrderEvent) {}
func (EmbeddableStrategy) OnCryptoPriceUpdate(*Context, events.Event)               {}
func (EmbeddableStrategy) OnCryptoL2Snapshot(*Context, events.Event)                {}
func (EmbeddableStrategy) OnCryptoL2Update(*Context, events.Event)                  {}
func (EmbeddableStrategy) OnCryptoPriceClear(*Context, events.Event)                {}
