// Package market provides local order book management and market discovery.
//
// Book mirrors the CLOB order book for a single binary market (YES + NO
// tokens). It is updated from two sources:
//   - REST snapshots via ApplyBookResponse (initial load)
//   - The Event Processor's parsed market payloads via ApplyAggOrderbook
//     (full snapshots), ApplyPriceChangeItem (incremental updates), and
//     ApplyTickSizeChange
//
// Internally each token's book is an int-millis heap-cached engine (package
// book) rather than a raw snapshot mirror, so best-bid/ask reads reflect
// correct crossed-book repair after out-of-band price_change messages.
package market

import (
	"log/slog"
	"time"

	ibook "polymarket-mm/internal/book"
	"polymarket-mm/pkg/types"
)

// Book maintains a local mirror of the order book for one market.
// It tracks both the YES and NO token books, though the strategy primarily
// uses the YES book for quoting (NO book is kept for completeness).
type Book struct {
	marketID string
	yesToken string
	noToken  string

	yes *ibook.Book
	no  *ibook.Book
}

// NewBook creates a new local order book for a market.
func NewBook(marketID, yesToken, noToken string, tickSize types.TickSize, logger *slog.Logger) *Book {
	return &Book{
		marketID: marketID,
		yesToken: yesToken,
		noToken:  noToken,
		yes:      ibook.New(yesToken, tickSize, logger),
		no:       ibook.New(noToken, tickSize, logger),
	}
}

// bookFor returns the per-token engine backing assetID, or nil if it
// belongs to neither token tracked by this market.
func (b *Book) bookFor(assetID string) *ibook.Book {
	switch assetID {
	case b.yesToken:
		return b.yes
	case b.noToken:
		return b.no
	default:
		return nil
	}
}

// BookFor exposes the per-token engine backing assetID to callers outside
// this package (strategy.Context uses it to satisfy strategy.BookSource).
func (b *Book) BookFor(assetID string) *ibook.Book {
	return b.bookFor(assetID)
}

// ApplyBookResponse applies a REST API book response.
func (b *Book) ApplyBookResponse(resp *types.BookResponse) {
	if tb := b.bookFor(resp.AssetID); tb != nil {
		if resp.TickSize != "" {
			tb.SetTickSize(types.TickSize(resp.TickSize))
		}
		tb.ApplySnapshot(resp.Bids, resp.Asks, time.Now())
	}
}

// ApplyAggOrderbook applies a new-schema full-depth snapshot (or one
// reconstructed from a legacy "book" frame by internal/events) to whichever
// token it belongs to.
func (b *Book) ApplyAggOrderbook(snapshot *types.AggOrderbookPayload) {
	tb := b.bookFor(snapshot.AssetID)
	if tb == nil {
		return
	}
	bids := make([]types.PriceLevel, len(snapshot.Bids))
	for i, lvl := range snapshot.Bids {
		bids[i] = types.PriceLevel{Price: lvl.Price, Size: lvl.Size}
	}
	asks := make([]types.PriceLevel, len(snapshot.Asks))
	for i, lvl := range snapshot.Asks {
		asks[i] = types.PriceLevel{Price: lvl.Price, Size: lvl.Size}
	}
	tb.ApplySnapshot(bids, asks, time.Now())
}

// ApplyPriceChangeItem applies a single new-schema incremental level change.
func (b *Book) ApplyPriceChangeItem(change *types.PriceChangeItem) {
	tb := b.bookFor(change.AssetID)
	if tb == nil {
		return
	}
	priceMillis, err := ibook.ToMillis(change.Price)
	if err != nil {
		return
	}
	sizeMillis, err := ibook.ToMillis(change.Size)
	if err != nil {
		return
	}
	tb.ApplyPriceChange(types.Side(change.Side), priceMillis, sizeMillis, time.Now())
}

// ApplyTickSizeChange updates the tracked tick size for whichever token the
// change belongs to.
func (b *Book) ApplyTickSizeChange(change *types.TickSizeChangePayload) {
	tb := b.bookFor(change.AssetID)
	if tb == nil {
		return
	}
	tb.SetTickSize(types.TickSize(change.NewTickSize))
}

// MidPrice returns the mid price for the YES token, computed as
// (bestBid + bestAsk) / 2. Returns false if the book is empty on either
// side. This value becomes the "s" (reference price) in the A-S formula.
func (b *Book) MidPrice() (float64, bool) {
	mid, ok := b.yes.Midpoint()
	if !ok {
		return 0, false
	}
	return float64(mid) / 1000, true
}

// BestBidAsk returns the best bid and ask for the YES token.
func (b *Book) BestBidAsk() (bid, ask float64, ok bool) {
	bidLvl, ok := b.yes.BestBid()
	if !ok {
		return 0, 0, false
	}
	askLvl, ok := b.yes.BestAsk()
	if !ok {
		return 0, 0, false
	}
	return float64(bidLvl.PriceMillis) / 1000, float64(askLvl.PriceMillis) / 1000, true
}

// BestFeasibleBidAsk returns the best feasible (depth-truncated) bid and ask
// for the YES token, in human decimal units.
func (b *Book) BestFeasibleBidAsk() (bid, ask float64, ok bool) {
	bidLvl, okBid := b.yes.BestFeasibleBid()
	askLvl, okAsk := b.yes.BestFeasibleAsk()
	if !okBid || !okAsk {
		return 0, 0, false
	}
	return float64(bidLvl.PriceMillis) / 1000, float64(askLvl.PriceMillis) / 1000, true
}

// IsStale returns true if the YES token book hasn't been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	return b.yes.IsStale(maxAge)
}

// LastUpdated returns the timestamp of the last YES token book update.
func (b *Book) LastUpdated() time.Time {
	return b.yes.LastUpdated()
}
