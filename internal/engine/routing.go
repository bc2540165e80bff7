package engine

import (
	"polymarket-mm/internal/events"
	"polymarket-mm/internal/market"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/pkg/types"
)

// bookRoutingStrategy is the built-in strategy that applies every market
// payload dispatched by the Event Processor to the right market's local
// book mirror. It is always registered first in the engine's Fanout, ahead
// of any business-logic strategy, so a tick read during the same dispatch
// batch sees the update.
//
// Grounded on original_source/src/strategies/poly_state_updates/
// update_book.rs's UpdateBookStrategy — another ordinary entry in the
// reference's strategy list rather than a special transport-layer case.
type bookRoutingStrategy struct {
	strategy.EmbeddableStrategy
	bookFor func(assetID string) *market.Book
}

func newBookRoutingStrategy(bookFor func(assetID string) *market.Book) *bookRoutingStrategy {
	return &bookRoutingStrategy{bookFor: bookFor}
}

func (r *bookRoutingStrategy) OnMarketAggOrderbook(_ *strategy.Context, _ events.Listener, snapshot *types.AggOrderbookPayload) {
	if b := r.bookFor(snapshot.AssetID); b != nil {
		b.ApplyAggOrderbook(snapshot)
	}
}

func (r *bookRoutingStrategy) OnMarketPriceChange(_ *strategy.Context, _ events.Listener, change *types.PriceChangeItem) {
	if b := r.bookFor(change.AssetID); b != nil {
		b.ApplyPriceChangeItem(change)
	}
}

func (r *bookRoutingStrategy) OnMarketTickSizeChange(_ *strategy.Context, _ events.Listener, change *types.TickSizeChangePayload) {
	if b := r.bookFor(change.AssetID); b != nil {
		b.ApplyTickSizeChange(change)
	}
}

// OnMarketClear wipes every book a reconnecting WSFeed was responsible for,
// so a strategy reading BestBid/Midpoint/etc. mid-reconnect sees "no data"
// (IsStale) rather than the last snapshot from before the drop.
func (r *bookRoutingStrategy) OnMarketClear(_ *strategy.Context, _ events.Listener, assetIDs []string) {
	for _, assetID := range assetIDs {
		if b := r.bookFor(assetID); b != nil {
			b.Clear()
		}
	}
}
