package events

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"polymarket-mm/pkg/types"
)

// Handler receives dispatched, fully-parsed events. A single implementation
// typically fans these out to every registered strategy — see
// internal/strategy.Fanout, which wraps a Context and a []Strategy to
// satisfy this interface without events importing strategy (avoiding an
// import cycle, since strategy already imports events for Listener/Event).
type Handler interface {
	HandleMarketAggOrderbook(listener Listener, snapshot *types.AggOrderbookPayload)
	HandleMarketPriceChange(listener Listener, change *types.PriceChangeItem)
	HandleMarketTickSizeChange(listener Listener, change *types.TickSizeChangePayload)
	HandleMarketPong(listener Listener)
	HandleMarketClear(listener Listener, assetIDs []string)
	HandleUserPong(listener Listener)
	HandleUserTrade(listener Listener, trade *types.TradePayload)
	HandleUserOrder(listener Listener, order *types.UserOrderEvent)
	HandleCryptoPriceUpdate(ev Event)
	HandleCryptoL2Snapshot(ev Event)
	HandleCryptoL2Update(ev Event)
	HandleCryptoPriceClear(ev Event)
}

// Processor is the single-consumer Event Processor: exactly one goroutine
// drains its channel, so all state mutations and strategy callbacks for a
// given asset happen in the arrival order the listeners observed, with no
// extra synchronization required inside a Handler.
//
// Grounded on original_source/src/exchange_listeners/event_processor.rs's
// spawn_event_processor / EventProcessor::handle_event.
type Processor struct {
	ch      chan Event
	pending int64
	handler Handler
	logger  *slog.Logger
	done    chan struct{}
}

// NewProcessor creates a Processor with the given channel buffer size.
func NewProcessor(bufSize int, handler Handler, logger *slog.Logger) *Processor {
	return &Processor{
		ch:      make(chan Event, bufSize),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Sender returns a CountingSender bound to this Processor's input channel.
func (p *Processor) Sender() CountingSender {
	return NewCountingSender(p.ch, &p.pending)
}

// Pending returns the number of events enqueued but not yet consumed.
func (p *Processor) Pending() int64 {
	return atomic.LoadInt64(&p.pending)
}

// Run drains the channel until it is closed. Intended to run on its own
// goroutine for the lifetime of the process.
func (p *Processor) Run() {
	defer close(p.done)
	for ev := range p.ch {
		p.handle(ev)
		atomic.AddInt64(&p.pending, -1)
	}
}

// Stop closes the input channel, letting Run drain remaining events and exit.
func (p *Processor) Stop() {
	close(p.ch)
	<-p.done
}

func (p *Processor) handle(ev Event) {
	switch ev.Kind {
	case KindMarketMessage:
		p.handleMarketMessage(ev.Listener, ev.Raw)
	case KindUserMessage:
		p.handleUserMessage(ev.Listener, ev.Raw)
	case KindMarketClear:
		p.handler.HandleMarketClear(ev.Listener, ev.AssetIDs)
	case KindCryptoPrice:
		p.handler.HandleCryptoPriceUpdate(ev)
	case KindCryptoL2Snapshot:
		p.handler.HandleCryptoL2Snapshot(ev)
	case KindCryptoL2Update:
		p.handler.HandleCryptoL2Update(ev)
	case KindCryptoPriceClear:
		p.handler.HandleCryptoPriceClear(ev)
	case KindRateUpdate, KindRateClear:
		// Rate conversion is a teacher concern with no strategy hook defined
		// by spec.md; reserved for a future conversion-rate consumer.
	}
}

func (p *Processor) warnf(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

// handleMarketMessage implements handle_market_event: case-insensitive PONG
// short-circuit, then legacy-vs-new dispatch.
func (p *Processor) handleMarketMessage(listener Listener, raw []byte) {
	if len(raw) == 0 {
		return
	}
	if isPong(raw) {
		p.handler.HandleMarketPong(listener)
		return
	}

	if listener.IsLegacy() {
		p.dispatchLegacyBatch(listener, raw)
		return
	}

	wrappers, err := decodeArrayOrSingle[types.NewSchemaWrapper](raw)
	if err != nil {
		p.warnf("failed to parse market message wrapper", "listener", listener.String(), "error", err)
		return
	}
	for _, wrapper := range wrappers {
		p.dispatchMarketMessage(listener, wrapper)
	}
}

// dispatchLegacyBatch decodes raw as either an array or a single legacy
// frame and dispatches each element by its event_type.
func (p *Processor) dispatchLegacyBatch(listener Listener, raw []byte) {
	frames, err := decodeArrayOrSingle[json.RawMessage](raw)
	if err != nil {
		p.warnf("failed to parse legacy market message", "listener", listener.String(), "error", err)
		return
	}
	for _, frame := range frames {
		var probe types.LegacyWrapper
		if err := json.Unmarshal(frame, &probe); err != nil {
			p.warnf("failed to parse legacy market frame envelope", "listener", listener.String(), "error", err)
			continue
		}
		p.dispatchMarketMessageLegacy(listener, probe.EventType, frame)
	}
}

func (p *Processor) dispatchMarketMessage(listener Listener, wrapper types.NewSchemaWrapper) {
	switch wrapper.Type {
	case "agg_orderbook":
		p.handleAggOrderbook(listener, wrapper.Payload)
	case "price_change":
		p.handlePriceChange(listener, wrapper.Payload)
	case "tick_size_change":
		p.handleTickSizeChange(listener, wrapper.Payload)
	case "pong":
		p.handler.HandleMarketPong(listener)
	default:
		p.warnf("unhandled market message type", "listener", listener.String(), "type", wrapper.Type)
	}
}

func (p *Processor) dispatchMarketMessageLegacy(listener Listener, eventType string, raw json.RawMessage) {
	switch eventType {
	case "price_change":
		var frame types.LegacyPriceChangeFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			p.warnf("failed to parse legacy price_change frame", "listener", listener.String(), "error", err)
			return
		}
		for _, change := range frame.PriceChanges {
			pc := types.PriceChangeItem{AssetID: change.AssetID, Price: change.Price, Size: change.Size, Side: change.Side}
			p.handler.HandleMarketPriceChange(listener, &pc)
		}
	case "book":
		var frame types.LegacyBookFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			p.warnf("failed to parse legacy book frame", "listener", listener.String(), "error", err)
			return
		}
		if len(frame.Buys) == 0 && len(frame.Sells) == 0 {
			return
		}
		snapshot := aggOrderbookFromLegacy(frame)
		p.handler.HandleMarketAggOrderbook(listener, &snapshot)
	case "tick_size_change":
		var frame types.LegacyTickSizeChangeFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			p.warnf("failed to parse legacy tick_size_change frame", "listener", listener.String(), "error", err)
			return
		}
		change := types.TickSizeChangePayload{AssetID: frame.AssetID, NewTickSize: frame.NewTickSize}
		p.handler.HandleMarketTickSizeChange(listener, &change)
	case "last_trade_price":
		// No lifecycle or strategy effect; acknowledged and dropped.
	default:
		p.warnf("unhandled legacy market message type", "listener", listener.String(), "type", eventType)
	}
}

func (p *Processor) handleAggOrderbook(listener Listener, payload json.RawMessage) {
	if snapshots, err := decodeArrayOrSingle[types.AggOrderbookPayload](payload); err == nil {
		for i := range snapshots {
			p.handler.HandleMarketAggOrderbook(listener, &snapshots[i])
		}
		return
	}
	p.warnf("failed to parse agg_orderbook payload", "listener", listener.String())
}

func (p *Processor) handlePriceChange(listener Listener, payload json.RawMessage) {
	var pcPayload types.PriceChangePayload
	if err := json.Unmarshal(payload, &pcPayload); err != nil {
		p.warnf("failed to parse price_change payload", "listener", listener.String(), "error", err)
		return
	}
	for i := range pcPayload.Changes {
		p.handler.HandleMarketPriceChange(listener, &pcPayload.Changes[i])
	}
}

func (p *Processor) handleTickSizeChange(listener Listener, payload json.RawMessage) {
	var change types.TickSizeChangePayload
	if err := json.Unmarshal(payload, &change); err != nil {
		p.warnf("failed to parse tick_size_change payload", "listener", listener.String(), "error", err)
		return
	}
	p.handler.HandleMarketTickSizeChange(listener, &change)
}

// handleUserMessage implements handle_user_event: case-insensitive PONG
// short-circuit, then array-or-single dispatch by event_type/type.
func (p *Processor) handleUserMessage(listener Listener, raw []byte) {
	if isPong(raw) {
		p.handler.HandleUserPong(listener)
		return
	}

	frames, err := decodeArrayOrSingle[json.RawMessage](raw)
	if err != nil {
		p.warnf("error parsing user message", "listener", listener.String(), "error", err)
		return
	}
	for _, frame := range frames {
		p.dispatchUserEvent(listener, frame)
	}
}

func (p *Processor) dispatchUserEvent(listener Listener, frame json.RawMessage) {
	switch userEventType(frame) {
	case "trade":
		var trade types.TradePayload
		if err := json.Unmarshal(frame, &trade); err != nil {
			p.warnf("failed to parse trade payload", "listener", listener.String(), "error", err)
			return
		}
		p.handler.HandleUserTrade(listener, &trade)
	case "order":
		var order types.UserOrderEvent
		if err := json.Unmarshal(frame, &order); err != nil {
			p.warnf("failed to parse order payload", "listener", listener.String(), "error", err)
			return
		}
		p.handler.HandleUserOrder(listener, &order)
	case "":
		p.warnf("user event missing type field", "listener", listener.String())
	default:
		// Unhandled user event types are logged at debug level upstream in
		// the reference; not actionable here without a dedicated hook.
	}
}
