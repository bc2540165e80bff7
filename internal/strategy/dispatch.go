package strategy

import (
	"sync"

	"polymarket-mm/internal/events"
	"polymarket-mm/pkg/types"
)

// Fanout implements events.Handler by calling every registered Strategy's
// matching callback with a shared Context, one strategy at a time, on the
// Processor's single consumer goroutine — mirroring
// EventProcessor::handle_event's for-loop over Vec<Arc<dyn Strategy>>.
//
// Strategies may be registered and unregistered while the processor is
// running (markets start and stop independently of the event stream), so
// the slice is guarded by a mutex and snapshotted before each dispatch
// rather than held locked across strategy callbacks.
type Fanout struct {
	ctx *Context

	mu         sync.RWMutex
	strategies []Strategy
}

// NewFanout builds a Fanout dispatching to strategies through ctx. Any
// strategies passed here are registered in order and never unregistered —
// use this for strategies that must run for the whole process lifetime,
// such as the lifecycle-reconciling strategy that must see every user event
// ahead of any per-market strategy.
func NewFanout(ctx *Context, strategies ...Strategy) *Fanout {
	f := &Fanout{ctx: ctx}
	f.strategies = append(f.strategies, strategies...)
	return f
}

// Register appends s to the dispatch list.
func (f *Fanout) Register(s Strategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategies = append(f.strategies, s)
}

// Unregister removes s from the dispatch list, if present.
func (f *Fanout) Unregister(s Strategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.strategies {
		if cur == s {
			f.strategies = append(f.strategies[:i], f.strategies[i+1:]...)
			return
		}
	}
}

func (f *Fanout) snapshot() []Strategy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Strategy, len(f.strategies))
	copy(out, f.strategies)
	return out
}

func (f *Fanout) HandleMarketAggOrderbook(listener events.Listener, snapshot *types.AggOrderbookPayload) {
	for _, s := range f.snapshot() {
		s.OnMarketAggOrderbook(f.ctx, listener, snapshot)
	}
}

func (f *Fanout) HandleMarketPriceChange(listener events.Listener, change *types.PriceChangeItem) {
	for _, s := range f.snapshot() {
		s.OnMarketPriceChange(f.ctx, listener, change)
	}
}

func (f *Fanout) HandleMarketTickSizeChange(listener events.Listener, change *types.TickSizeChangePayload) {
	for _, s := range f.snapshot() {
		s.OnMarketTickSizeChange(f.ctx, listener, change)
	}
}

func (f *Fanout) HandleMarketPong(listener events.Listener) {
	for _, s := range f.snapshot() {
		s.OnMarketPong(f.ctx, listener)
	}
}

func (f *Fanout) HandleMarketClear(listener events.Listener, assetIDs []string) {
	for _, s := range f.snapshot() {
		s.OnMarketClear(f.ctx, listener, assetIDs)
	}
}

func (f *Fanout) HandleUserPong(listener events.Listener) {
	for _, s := range f.snapshot() {
		s.OnUserPong(f.ctx, listener)
	}
}

func (f *Fanout) HandleUserTrade(listener events.Listener, trade *types.TradePayload) {
	for _, s := range f.snapshot() {
		s.OnUserTrade(f.ctx, listener, trade)
	}
}

func (f *Fanout) HandleUserOrder(listener events.Listener, order *types.UserOrderEvent) {
	for _, s := range f.snapshot() {
		s.OnUserOrder(f.ctx, listener, order)
	}
}

func (f *Fanout) HandleCryptoPriceUpdate(ev events.Event) {
	for _, s := range f.snapshot() {
		s.OnCryptoPriceUpdate(f.ctx, ev)
	}
}

func (f *Fanout) HandleCryptoL2Snapshot(ev events.Event) {
	for _, s := range f.snapshot() {
		s.OnCryptoL2Snapshot(f.ctx, ev)
	}
}

func (f *Fanout) HandleCryptoL2Update(ev events.Event) {
	for _, s := range f.snapshot() {
		s.OnCryptoL2Update(f.ctx, ev)
	}
}

func (f *Fanout) HandleCryptoPriceClear(ev events.Event) {
	for _, s := range f.snapshot() {
		s.OnCryptoPriceClear(f.ctx, ev)
	}
}
