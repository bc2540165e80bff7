package lifecycle

import (
	"strconv"
	"strings"

	"polymarket-mm/pkg/types"
)

func parseSide(s string) (types.Side, bool) {
	switch strings.ToUpper(s) {
	case "BUY":
		return types.BUY, true
	case "SELL":
		return types.SELL, true
	default:
		return "", false
	}
}

func parseMillis(s string) (int64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return millisOf(v), true
}

func (m *Manager) warnf(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

// HandleOrderEvent reconciles a user-channel "order" event against the
// intent registry, per spec.md §4.4's PLACEMENT/UPDATE/CANCELLATION rules.
func (m *Manager) HandleOrderEvent(payload *types.UserOrderEvent) {
	side, ok := parseSide(payload.Side)
	if !ok {
		m.warnf("order event has unknown side", "asset", payload.AssetID, "side", payload.Side)
		return
	}
	priceMillis, ok := parseMillis(payload.Price)
	if !ok {
		m.warnf("order event has unparsable price", "asset", payload.AssetID, "price", payload.Price)
		return
	}
	sizeMillis, ok := parseMillis(payload.OriginalSize)
	if !ok {
		m.warnf("order event has unparsable size", "asset", payload.AssetID, "size", payload.OriginalSize)
		return
	}
	sizeFilledMillis, _ := parseMillis(payload.SizeMatched)

	ao := m.assetOrdersFor(payload.AssetID)
	sb := ao.sideBookFor(side)
	k := keyFor(priceMillis, sizeMillis)

	switch payload.OrderEventType {
	case types.OrderEventPlacement:
		intent, found := sb.get(k)
		if !found {
			m.warnf("PLACEMENT for unknown intent", "asset", payload.AssetID, "price", payload.Price, "size", payload.OriginalSize)
			return
		}
		intent.mu.Lock()
		intent.ExchangeID = payload.ID
		intent.State = types.Live
		intent.mu.Unlock()

	case types.OrderEventUpdate:
		switch strings.ToUpper(payload.Status) {
		case "LIVE":
			if intent, found := sb.get(k); found {
				intent.mu.Lock()
				intent.SizeFilled = sizeFilledMillis
				intent.mu.Unlock()
			}
		case "MATCHED":
			if !sb.remove(k) {
				m.warnf("UPDATE(MATCHED) for unknown intent", "asset", payload.AssetID, "price", payload.Price, "size", payload.OriginalSize)
			}
		}

	case types.OrderEventCancellation:
		if !sb.remove(k) {
			m.warnf("CANCELLATION for unknown intent", "asset", payload.AssetID, "price", payload.Price, "size", payload.OriginalSize)
		}

	default:
		m.warnf("unknown order_event_type", "asset", payload.AssetID, "type", payload.OrderEventType)
	}
}

// HandleTradeEvent reconciles a user-channel "trade" event. Only MATCHED
// trades have an effect; TAKER removes the matching local intent and
// updates position, MAKER is a no-op at the order-book level (the paired
// UPDATE(MATCHED) on the resting intent already removes it) but still
// updates position for the maker slices belonging to signerAddress.
func (m *Manager) HandleTradeEvent(payload *types.TradePayload, signerAddress string) {
	if payload.Status != types.TradeStatusMatched {
		return
	}

	switch payload.TradeRole {
	case types.TradeRoleTaker:
		// Only the TAKER side cares about the top-level side/size: it keys
		// the resting intent this process itself placed. MAKER aggregation
		// below reads side/size per MakerOrder slice instead, so it must not
		// be gated on payload.Side parsing here — a venue that omits the
		// top-level side on a trade frame would otherwise silently drop
		// every maker fill for that trade.
		side, ok := parseSide(payload.Side)
		if !ok {
			m.warnf("trade event has unknown side", "asset", payload.AssetID, "side", payload.Side)
			return
		}
		sizeMillis, ok := parseMillis(payload.Size)
		if !ok {
			m.warnf("trade event has unparsable size", "asset", payload.AssetID, "size", payload.Size)
			return
		}
		priceMillis, ok := parseMillis(payload.Price)
		if !ok {
			m.warnf("trade event has unparsable price", "asset", payload.AssetID, "price", payload.Price)
			return
		}
		ao := m.assetOrdersFor(payload.AssetID)
		sb := ao.sideBookFor(side)
		k := keyFor(priceMillis, sizeMillis)
		if !sb.remove(k) {
			m.warnf("no open order to fill for TAKER trade", "asset", payload.AssetID, "price", payload.Price, "size", payload.Size)
		}
		if side == types.BUY {
			m.adjustPosition(payload.AssetID, sizeMillis)
		} else {
			m.adjustPosition(payload.AssetID, -sizeMillis)
		}

	case types.TradeRoleMaker:
		var netMillis int64
		for _, mk := range payload.MakerOrders {
			if !strings.EqualFold(mk.MakerAddress, signerAddress) {
				continue
			}
			amt, ok := parseMillis(mk.MatchedAmount)
			if !ok {
				continue
			}
			if s, ok2 := parseSide(mk.Side); ok2 && s == types.SELL {
				netMillis -= amt
			} else {
				netMillis += amt
			}
		}
		if netMillis != 0 {
			m.adjustPosition(payload.AssetID, netMillis)
		}

	default:
		m.warnf("matched trade with unknown trader_side", "asset", payload.AssetID, "id", payload.ID)
	}
}
