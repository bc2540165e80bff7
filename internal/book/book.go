// Package book implements the per-asset order book engine: int-millis
// price/size maps with a lazily rebuilt heap cache, crossed-book repair on
// out-of-band price_change messages, and depth-truncated "feasible price"
// queries.
//
// Grounded on original_source/src/exchange_listeners/orderbooks/poly_orderbook.rs,
// translated from the reference's concurrent-map-plus-mutex-heap design
// into Go's idiomatic single-writer-with-RWMutex shape (matching the
// teacher's internal/market/book.go concurrency style, which this package
// replaces — the teacher's version was a slice-snapshot mirror with a stub
// ApplyPriceChange and no heap cache, so it could not represent the
// crossed-book repair or feasible-price queries the specification requires).
package book

import (
	"container/heap"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"polymarket-mm/pkg/types"
)

const (
	// IgnoringVolume is the minimum cumulative size (int-millis) a feasible
	// price query must accumulate before returning a level.
	IgnoringVolume int64 = 5_000
	// SearchDepth is how far (int-millis) a feasible price query will walk
	// away from the top of book before giving up.
	SearchDepth int64 = 100
	// maxPriceMillis is the ask-side price ceiling: price cannot exceed 1.000.
	maxPriceMillis int64 = 999
)

// Level is one price/size pair in int-millis units.
type Level struct {
	PriceMillis int64
	SizeMillis  int64
}

// Book is the per-asset L2 order book: two maps (price millis -> size
// millis) plus dirty-flagged heaps kept consistent with them.
type Book struct {
	mu sync.RWMutex

	assetID  string
	tickSize types.TickSize

	bids map[int64]int64 // price -> size
	asks map[int64]int64

	bidHeap *maxHeap // dirty-flagged cache, rebuilt lazily
	askHeap *minHeap

	bidsDirty bool
	asksDirty bool

	timestamp time.Time

	logger *slog.Logger
}

// New creates an empty book for the given asset id.
func New(assetID string, tickSize types.TickSize, logger *slog.Logger) *Book {
	return &Book{
		assetID:  assetID,
		tickSize: tickSize,
		bids:     make(map[int64]int64),
		asks:     make(map[int64]int64),
		bidHeap:  &maxHeap{},
		askHeap:  &minHeap{},
		logger:   logger.With("component", "book", "asset_id", assetID),
	}
}

// AssetID returns the asset this book tracks.
func (b *Book) AssetID() string { return b.assetID }

// TickSize returns the book's current price grid.
func (b *Book) TickSize() types.TickSize {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tickSize
}

// SetTickSize updates the price grid without re-quantizing existing levels
// — upstream guarantees subsequent updates use the new grid (spec.md §4.2).
func (b *Book) SetTickSize(tick types.TickSize) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickSize = tick
}

// ToMillis rounds a decimal price or size string to an integer number of
// millis (value × 1000, rounded to nearest).
func ToMillis(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f*1000 + 0.5), nil
}

// ApplySnapshot replaces the entire book with a fresh full-depth snapshot.
// Levels with size 0 are skipped. Both heaps are marked dirty.
func (b *Book) ApplySnapshot(bids, asks []types.PriceLevel, ts time.Time) {
	newBids := make(map[int64]int64, len(bids))
	for _, lvl := range bids {
		p, err := ToMillis(lvl.Price)
		if err != nil {
			b.logger.Warn("snapshot: bad bid price", "price", lvl.Price, "error", err)
			continue
		}
		sz, err := ToMillis(lvl.Size)
		if err != nil {
			b.logger.Warn("snapshot: bad bid size", "size", lvl.Size, "error", err)
			continue
		}
		if sz <= 0 {
			continue
		}
		newBids[p] = sz
	}

	newAsks := make(map[int64]int64, len(asks))
	for _, lvl := range asks {
		p, err := ToMillis(lvl.Price)
		if err != nil {
			b.logger.Warn("snapshot: bad ask price", "price", lvl.Price, "error", err)
			continue
		}
		sz, err := ToMillis(lvl.Size)
		if err != nil {
			b.logger.Warn("snapshot: bad ask size", "size", lvl.Size, "error", err)
			continue
		}
		if sz <= 0 {
			continue
		}
		newAsks[p] = sz
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = newBids
	b.asks = newAsks
	b.bidsDirty = true
	b.asksDirty = true
	b.timestamp = ts
}

// Clear empties both sides of the book and resets its timestamp to the zero
// value, so IsStale reports true until the next snapshot arrives. Called
// when the upstream feed reconnects: spec.md §4.5 requires strategies never
// observe stale state across a reconnection, so every book a reconnecting
// listener was responsible for must be wiped before it resubscribes.
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[int64]int64)
	b.asks = make(map[int64]int64)
	b.bidsDirty = true
	b.asksDirty = true
	b.timestamp = time.Time{}
}

// ApplyPriceChange applies one incremental level update and then performs
// crossed-book repair: if a bid update lands at or above the current best
// ask, every ask at or below the new bid price is pruned (and symmetrically
// for ask updates), since Polymarket's price_change stream is incremental
// and can otherwise leave the book crossed.
func (b *Book) ApplyPriceChange(side types.Side, priceMillis, sizeMillis int64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch side {
	case types.BUY:
		if sizeMillis <= 0 {
			delete(b.bids, priceMillis)
		} else {
			b.bids[priceMillis] = sizeMillis
		}
		b.bidsDirty = true
		b.repairAsksLocked(priceMillis)

	case types.SELL:
		if sizeMillis <= 0 {
			delete(b.asks, priceMillis)
		} else {
			b.asks[priceMillis] = sizeMillis
		}
		b.asksDirty = true
		b.repairBidsLocked(priceMillis)
	}

	b.timestamp = ts
}

// repairAsksLocked removes every ask level at or below newBidPrice. Must be
// called with b.mu held.
func (b *Book) repairAsksLocked(newBidPrice int64) {
	for price := range b.asks {
		if price <= newBidPrice {
			delete(b.asks, price)
			b.asksDirty = true
		}
	}
}

// repairBidsLocked removes every bid level at or above newAskPrice. Must be
// called with b.mu held.
func (b *Book) repairBidsLocked(newAskPrice int64) {
	for price := range b.bids {
		if price >= newAskPrice {
			delete(b.bids, price)
			b.bidsDirty = true
		}
	}
}

// rebuildBidHeapLocked rebuilds the bid max-heap from the map if dirty. Must
// be called with b.mu held (read or write — it only mutates the heap field,
// which callers treat as a cache).
func (b *Book) rebuildBidHeapLocked() {
	if !b.bidsDirty {
		return
	}
	h := make(maxHeap, 0, len(b.bids))
	for price, size := range b.bids {
		h = append(h, Level{PriceMillis: price, SizeMillis: size})
	}
	heap.Init(&h)
	b.bidHeap = &h
	b.bidsDirty = false
}

func (b *Book) rebuildAskHeapLocked() {
	if !b.asksDirty {
		return
	}
	h := make(minHeap, 0, len(b.asks))
	for price, size := range b.asks {
		h = append(h, Level{PriceMillis: price, SizeMillis: size})
	}
	heap.Init(&h)
	b.askHeap = &h
	b.asksDirty = false
}

// BestBid returns the highest bid level, if any.
func (b *Book) BestBid() (Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuildBidHeapLocked()
	if b.bidHeap.Len() == 0 {
		return Level{}, false
	}
	return (*b.bidHeap)[0], true
}

// BestAsk returns the lowest ask level, if any.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuildAskHeapLocked()
	if b.askHeap.Len() == 0 {
		return Level{}, false
	}
	return (*b.askHeap)[0], true
}

// Midpoint returns the integer-millis midpoint of best bid and best ask, if
// both sides are non-empty.
func (b *Book) Midpoint() (int64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return (bid.PriceMillis + ask.PriceMillis) / 2, true
}

// Spread returns ask − bid in int-millis, if both sides are non-empty.
func (b *Book) Spread() (int64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return ask.PriceMillis - bid.PriceMillis, true
}

// BestFeasibleBid walks down from the best bid, skipping levels too thin to
// execute against, and returns the first level whose cumulative size (from
// the top) reaches IgnoringVolume within SearchDepth of the starting price.
// Operates on a clone of the heap so the stored state is never mutated by a
// read.
func (b *Book) BestFeasibleBid() (Level, bool) {
	b.mu.Lock()
	b.rebuildBidHeapLocked()
	clone := make(maxHeap, len(*b.bidHeap))
	copy(clone, *b.bidHeap)
	b.mu.Unlock()

	if clone.Len() == 0 {
		return Level{}, false
	}
	heap.Init(&clone)

	start := clone[0].PriceMillis
	boundary := start - SearchDepth

	var cumulative int64
	for clone.Len() > 0 {
		lvl := heap.Pop(&clone).(Level)
		if lvl.PriceMillis < boundary {
			return Level{}, false
		}
		cumulative += lvl.SizeMillis
		if cumulative >= IgnoringVolume {
			return lvl, true
		}
	}
	return Level{}, false
}

// BestFeasibleAsk is the ask-side mirror of BestFeasibleBid, with an upper
// price cap of 999 (price cannot exceed 1.000).
func (b *Book) BestFeasibleAsk() (Level, bool) {
	b.mu.Lock()
	b.rebuildAskHeapLocked()
	clone := make(minHeap, len(*b.askHeap))
	copy(clone, *b.askHeap)
	b.mu.Unlock()

	if clone.Len() == 0 {
		return Level{}, false
	}
	heap.Init(&clone)

	start := clone[0].PriceMillis
	boundary := start + SearchDepth
	if boundary > maxPriceMillis {
		boundary = maxPriceMillis
	}

	var cumulative int64
	for clone.Len() > 0 {
		lvl := heap.Pop(&clone).(Level)
		if lvl.PriceMillis > boundary {
			return Level{}, false
		}
		cumulative += lvl.SizeMillis
		if cumulative >= IgnoringVolume {
			return lvl, true
		}
	}
	return Level{}, false
}

// LastUpdated returns when the book was last mutated.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timestamp
}

// IsStale reports whether the book has not been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.timestamp.IsZero() {
		return true
	}
	return time.Since(b.timestamp) > maxAge
}
