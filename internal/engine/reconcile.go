package engine

import (
	"polymarket-mm/internal/events"
	"polymarket-mm/internal/lifecycle"
	"polymarket-mm/internal/strategy"
	"polymarket-mm/pkg/types"
)

// reconcilingStrategy is the built-in strategy that feeds user-channel
// order/trade events into the lifecycle manager. It is registered right
// after the book-routing strategy in the engine's Fanout, ahead of any
// business-logic strategy, so intent state is reconciled before a strategy callback reads
// it for the same event batch.
//
// Grounded on original_source/src/strategies/poly_state_updates/
// update_orders.rs's UpdateOrderStrategy, which is itself just another
// entry in the reference's Vec<Arc<dyn Strategy>> rather than a special case.
type reconcilingStrategy struct {
	strategy.EmbeddableStrategy
	mgr           *lifecycle.Manager
	signerAddress string
}

func newReconcilingStrategy(mgr *lifecycle.Manager, signerAddress string) *reconcilingStrategy {
	return &reconcilingStrategy{mgr: mgr, signerAddress: signerAddress}
}

func (r *reconcilingStrategy) OnUserOrder(_ *strategy.Context, _ events.Listener, order *types.UserOrderEvent) {
	r.mgr.HandleOrderEvent(order)
}

func (r *reconcilingStrategy) OnUserTrade(_ *strategy.Context, _ events.Listener, trade *types.TradePayload) {
	r.mgr.HandleTradeEvent(trade, r.signerAddress)
}
