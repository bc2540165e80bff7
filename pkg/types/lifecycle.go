package types

import "time"

// OrderIntentState is the state an OpenOrder traverses from local creation to
// removal. See internal/lifecycle for the transition rules.
type OrderIntentState string

const (
	Unconfirmed   OrderIntentState = "Unconfirmed"   // placed locally, exchange id not yet bound
	Live          OrderIntentState = "Live"          // exchange id bound, resting on the book
	ToBeCanceled  OrderIntentState = "ToBeCanceled"  // cancel dispatched, awaiting confirmation
)

// Position is a signed cumulative size in int-millis (size × 1000) for one
// asset id. Long-only CTF holdings never go negative; an unsolicited sell
// that would do so is clamped to zero by the lifecycle manager.
type Position struct {
	AssetID    string
	SizeMillis int64
	UpdatedAt  time.Time
}

// TradeRole distinguishes which side of a matched trade this process played.
type TradeRole string

const (
	TradeRoleTaker   TradeRole = "TAKER"
	TradeRoleMaker   TradeRole = "MAKER"
	TradeRoleUnknown TradeRole = "UNKNOWN"
)

// TradeStatus mirrors the exchange's trade status field; only "MATCHED"
// trades have a lifecycle effect.
type TradeStatus string

const (
	TradeStatusMatched TradeStatus = "MATCHED"
)

// OrderEventType mirrors the exchange's order_event_type / type field on
// user-channel order events.
type OrderEventType string

const (
	OrderEventPlacement    OrderEventType = "PLACEMENT"
	OrderEventUpdate       OrderEventType = "UPDATE"
	OrderEventCancellation OrderEventType = "CANCELLATION"
)
