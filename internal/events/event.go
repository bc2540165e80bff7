// Package events implements the single-consumer Event Processor: it
// serializes all external events (Polymarket market/user frames, crypto
// exchange ticks) into typed state mutations and strategy callbacks,
// preserving per-asset ordering.
//
// Grounded on original_source/src/exchange_listeners/event_processor.rs —
// the SocketEvent enum, the CountingSender pending-counter pattern, and the
// legacy/new schema dispatch tree are carried into Go as a channel of a
// tagged Event struct drained by exactly one goroutine.
package events

import (
	"sync/atomic"
)

// Listener identifies which upstream socket produced an event, and whether
// it speaks the legacy or new wire schema.
type Listener int

const (
	PolyMarket Listener = iota
	PolyMarketLegacy
	PolyUser
	PolyUserLegacy
)

func (l Listener) String() string {
	switch l {
	case PolyMarket:
		return "PolyMarket_Market"
	case PolyMarketLegacy:
		return "PolyMarket_Market_Legacy"
	case PolyUser:
		return "PolyMarket_User"
	case PolyUserLegacy:
		return "PolyMarket_User_Legacy"
	default:
		return "Unknown"
	}
}

// IsLegacy reports whether l speaks the flat event_type wire schema.
func (l Listener) IsLegacy() bool { return l == PolyMarketLegacy || l == PolyUserLegacy }

// IsMarket reports whether l is a market-data listener.
func (l Listener) IsMarket() bool { return l == PolyMarket || l == PolyMarketLegacy }

// IsUser reports whether l is a user-stream listener.
func (l Listener) IsUser() bool { return l == PolyUser || l == PolyUserLegacy }

// Kind tags the variant of an Event.
type Kind int

const (
	KindMarketMessage Kind = iota
	KindUserMessage
	KindMarketClear
	KindCryptoPrice
	KindCryptoL2Snapshot
	KindCryptoL2Update
	KindCryptoPriceClear
	KindRateUpdate
	KindRateClear
)

// Event is the tagged variant every listener sends into the processor's
// channel. Only the fields relevant to Kind are populated.
type Event struct {
	Kind     Kind
	Listener Listener
	Raw      []byte // MarketMessage / UserMessage payload

	AssetIDs []string // KindMarketClear: every asset the listener was responsible for

	Exchange   string
	Instrument string
	Crypto     string
	Depth      string

	CryptoPrice CryptoPriceUpdate
	Bids, Asks  []Level

	RateKind  string
	RateValue float64
}

// CryptoPriceUpdate is an L1 best bid/ask update from a crypto exchange adapter.
type CryptoPriceUpdate struct {
	BidPrice, BidSize float64
	AskPrice, AskSize float64
}

// Level is one L2 book level from a crypto exchange adapter.
type Level struct {
	Price, Size float64
}

// CountingSender wraps the processor's input channel so the pending count
// is observable by the supervisor for back-pressure diagnostics. pending is
// incremented before the send and decremented only if the send fails (the
// consumer decrements on successful dequeue) — this avoids a window where
// the counter would briefly overcount a message already consumed.
type CountingSender struct {
	ch      chan Event
	pending *int64
}

// NewCountingSender wraps ch, sharing the given pending counter with the
// Processor that drains ch.
func NewCountingSender(ch chan Event, pending *int64) CountingSender {
	return CountingSender{ch: ch, pending: pending}
}

// Send enqueues ev, blocking until there is room or ctx-less send succeeds.
// Returns false if the channel is closed.
func (s CountingSender) Send(ev Event) (ok bool) {
	atomic.AddInt64(s.pending, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(s.pending, -1)
			ok = false
		}
	}()
	s.ch <- ev
	return true
}

// TrySend enqueues ev without blocking; returns false if the channel is full.
func (s CountingSender) TrySend(ev Event) bool {
	atomic.AddInt64(s.pending, 1)
	select {
	case s.ch <- ev:
		return true
	default:
		atomic.AddInt64(s.pending, -1)
		return false
	}
}
