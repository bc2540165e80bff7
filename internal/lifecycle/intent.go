// Package lifecycle implements the Order Lifecycle Manager: the bridge
// between local order intents and exchange-authoritative state. It owns
// the Unconfirmed → Live → ToBeCanceled → removed state machine and
// reconciles it against user-stream PLACEMENT/UPDATE/CANCELLATION/TRADE
// events.
//
// Grounded on original_source/src/strategies/poly_state_updates/
// update_orders.rs (reconciliation) and spec.md §4.4 (place/cancel
// algorithms), carried from the reference's per-(price,size) DashMap keys
// into a Go map guarded by a per-asset mutex.
package lifecycle

import (
	"sync"
	"time"

	"polymarket-mm/pkg/types"
)

// key identifies one order intent within a single asset+side map.
type key struct {
	priceMillis int64
	sizeMillis  int64
}

func keyFor(priceMillis, sizeMillis int64) key {
	return key{priceMillis: priceMillis, sizeMillis: sizeMillis}
}

// millisOf rounds a decimal price/size to int-millis: round(value*1000), not
// truncation, matching the reference's (val * 1000.0).round() as u32.
func millisOf(v float64) int64 {
	if v >= 0 {
		return int64(v*1000 + 0.5)
	}
	return -int64(-v*1000 + 0.5)
}

// Intent is one locally tracked order.
type Intent struct {
	mu sync.Mutex

	AssetID     string
	Side        types.Side
	PriceMillis int64
	SizeMillis  int64

	State      types.OrderIntentState
	ExchangeID string
	SizeFilled int64
	CreatedAt  time.Time
}

func (i *Intent) snapshot() Intent {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Intent{
		AssetID:     i.AssetID,
		Side:        i.Side,
		PriceMillis: i.PriceMillis,
		SizeMillis:  i.SizeMillis,
		State:       i.State,
		ExchangeID:  i.ExchangeID,
		SizeFilled:  i.SizeFilled,
		CreatedAt:   i.CreatedAt,
	}
}

// sideBook is the per-side (price,size) → intent map for one asset.
type sideBook struct {
	mu    sync.RWMutex
	byKey map[key]*Intent
}

func newSideBook() *sideBook {
	return &sideBook{byKey: make(map[key]*Intent)}
}

func (s *sideBook) get(k key) (*Intent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.byKey[k]
	return in, ok
}

func (s *sideBook) insert(k key, in *Intent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[k]; exists {
		return false
	}
	s.byKey[k] = in
	return true
}

func (s *sideBook) remove(k key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[k]; !ok {
		return false
	}
	delete(s.byKey, k)
	return true
}

// assetOrders holds the bid and ask sideBooks for one asset id.
type assetOrders struct {
	bids *sideBook
	asks *sideBook
}

func newAssetOrders() *assetOrders {
	return &assetOrders{bids: newSideBook(), asks: newSideBook()}
}

func (a *assetOrders) sideBookFor(side types.Side) *sideBook {
	if side == types.SELL {
		return a.asks
	}
	return a.bids
}

func (s *sideBook) snapshotAll() []Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Intent, 0, len(s.byKey))
	for _, in := range s.byKey {
		out = append(out, in.snapshot())
	}
	return out
}
