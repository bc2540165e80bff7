package types

import "encoding/json"

// This file mirrors the "new" Polymarket market WebSocket schema: frames are
// wrapped under a top-level "type" discriminator, as opposed to the legacy
// flat "event_type" schema in types.go. Both schemas are consumed
// indefinitely; see internal/events for the dispatch tree that picks between
// them per listener.

// AggOrderbookLevel is one bid or ask level within an agg_orderbook payload.
type AggOrderbookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// AggOrderbookPayload is the full-depth snapshot carried by a "agg_orderbook"
// frame (new schema) or reconstructed from a legacy "book" frame.
type AggOrderbookPayload struct {
	AssetID   string              `json:"asset_id"`
	Market    string              `json:"market"`
	Bids      []AggOrderbookLevel `json:"bids"`
	Asks      []AggOrderbookLevel `json:"asks"`
	Timestamp string              `json:"timestamp"`
	Hash      string              `json:"hash"`
}

// PriceChangeItem is one element of the "pc" array within a price_change
// payload (new schema): a is asset id, p is price, s is size, si is side.
type PriceChangeItem struct {
	AssetID string `json:"a"`
	Price   string `json:"p"`
	Size    string `json:"s"`
	Side    string `json:"si"`
}

// PriceChangePayload wraps one or more incremental level changes that must
// be applied to the book in order.
type PriceChangePayload struct {
	Changes   []PriceChangeItem `json:"pc"`
	Timestamp string            `json:"t"`
}

// TickSizeChangePayload notifies a change to a market's price grid.
type TickSizeChangePayload struct {
	AssetID    string `json:"asset_id"`
	NewTickSize string `json:"new_tick_size"`
}

// NewSchemaWrapper is the outer new-schema market frame.
type NewSchemaWrapper struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LegacyWrapper is the outer legacy market frame (flat event_type field,
// payload fields are siblings rather than nested — see LegacyBookFrame,
// LegacyPriceChangeFrame below which embed this).
type LegacyWrapper struct {
	EventType string `json:"event_type"`
}

// LegacyPriceChangeFrame is the legacy "price_change" frame shape: an array
// of per-level changes alongside the wrapper's event_type.
type LegacyPriceChangeFrame struct {
	EventType    string                 `json:"event_type"`
	Market       string                 `json:"market"`
	AssetID      string                 `json:"asset_id"`
	Timestamp    string                 `json:"timestamp"`
	PriceChanges []LegacyPriceChangeOne `json:"price_changes"`
}

// LegacyPriceChangeOne is one level change within a legacy price_change frame.
type LegacyPriceChangeOne struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// LegacyBookFrame is the legacy "book" frame shape: a flat full snapshot.
type LegacyBookFrame struct {
	EventType string       `json:"event_type"`
	Market    string       `json:"market"`
	AssetID   string       `json:"asset_id"`
	Buys      []PriceLevel `json:"buys"`
	Sells     []PriceLevel `json:"sells"`
	Timestamp string       `json:"timestamp"`
	Hash      string       `json:"hash"`
}

// LegacyTickSizeChangeFrame is the legacy tick_size_change frame shape.
type LegacyTickSizeChangeFrame struct {
	EventType   string `json:"event_type"`
	AssetID     string `json:"asset_id"`
	NewTickSize string `json:"new_tick_size"`
}

// TradePayload is a user-channel "trade" event: a fill against one of this
// account's resting or taking orders.
type TradePayload struct {
	AssetID      string       `json:"asset_id"`
	EventType    string       `json:"event_type"`
	ID           string       `json:"id"`
	LastUpdate   string       `json:"last_update"`
	MakerOrders  []MakerOrder `json:"maker_orders"`
	Market       string       `json:"market"`
	MatchTime    string       `json:"match_time"`
	Outcome      string       `json:"outcome"`
	Owner        string       `json:"owner"`
	Price        string       `json:"price"`
	Side         string       `json:"side"`
	Size         string       `json:"size"`
	Status       TradeStatus  `json:"status"`
	TakerOrderID string       `json:"taker_order_id"`
	Timestamp    string       `json:"timestamp"`
	TradeRole    TradeRole    `json:"trader_side"`
	TradeOwner   string       `json:"trade_owner"`
	MessageType  string       `json:"type"`
}

// MakerOrder is one maker-side leg of a matched trade.
type MakerOrder struct {
	MakerAddress   string `json:"maker_address"`
	OrderID        string `json:"order_id"`
	AssetID        string `json:"asset_id"`
	Price          string `json:"price"`
	MatchedAmount  string `json:"matched_amount"`
	Outcome        string `json:"outcome"`
	Side           string `json:"side"`
}

// UserOrderEvent is a user-channel "order" event: a lifecycle transition for
// one of this account's orders (PLACEMENT/UPDATE/CANCELLATION). Distinct
// from OrderPayload (types.go), which is the outgoing REST request body for
// POST /orders — these two travel in opposite directions over the wire.
type UserOrderEvent struct {
	ID               string         `json:"id"`
	AssetID          string         `json:"asset_id"`
	AssociateTrades  []string       `json:"associate_trades"`
	EventType        string         `json:"event_type"`
	Market           string         `json:"market"`
	OrderOwner       string         `json:"order_owner"`
	OrderEventType   OrderEventType `json:"type"`
	Outcome          string         `json:"outcome"`
	Owner            string         `json:"owner"`
	Price            string         `json:"price"`
	Side             string         `json:"side"`
	OriginalSize     string         `json:"original_size"`
	SizeMatched      string         `json:"size_matched"`
	Timestamp        string         `json:"timestamp"`
	Status           string         `json:"status"`
}
