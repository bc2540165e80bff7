// Package strategy implements the Avellaneda-Stoikov market-making algorithm
// for Polymarket binary prediction markets (prices in [0, 1]).
//
// The core idea: post a bid below and an ask above a "reservation price" that
// accounts for inventory risk. When the bot is long, it lowers quotes to
// attract buyers; when short, it raises quotes to attract sellers.
//
// Per-tick flow (every RefreshInterval):
//  1. Check book staleness and risk limits.
//  2. Compute reservation price:  r = mid - q * γ * σ² * T
//  3. Compute optimal spread:     δ = γ * σ² * T + (2/γ) * ln(1 + γ/k)
//  4. Derive bid = r - δ/2, ask = r + δ/2, clamped to [tick, 1-tick].
//  5. Reconcile: cancel stale orders, place new ones through the lifecycle
//     manager.
//
// The bot earns the spread when both sides fill. Inventory skew (q) ensures
// it doesn't accumulate unbounded directional risk.
//
// Maker is a Strategy (see context.go): it never touches exchange.Client or
// the order book directly. Quote generation runs on its own ticker; fills
// and order-lifecycle transitions arrive as OnUserTrade/OnUserOrder callbacks
// dispatched by Fanout off the single-consumer event processor.
package strategy

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"polymarket-mm/internal/api"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/events"
	"polymarket-mm/internal/lifecycle"
	"polymarket-mm/internal/risk"
	"polymarket-mm/pkg/types"
)

// Maker runs the Avellaneda-Stoikov strategy for a single market (its YES
// token). It embeds EmbeddableStrategy and overrides only the callbacks it
// needs; order placement/cancellation and book reads go through the shared
// Context passed to Run and to every callback.
type Maker struct {
	EmbeddableStrategy

	cfg        config.StrategyConfig
	marketInfo types.MarketInfo
	inventory  *Inventory
	riskMgr    *risk.Manager

	flowTracker *FlowTracker

	dashboardEvents chan<- api.DashboardEvent

	logger *slog.Logger
}

// NewMaker creates a strategy instance for one market.
func NewMaker(
	cfg config.StrategyConfig,
	info types.MarketInfo,
	inventory *Inventory,
	riskMgr *risk.Manager,
	logger *slog.Logger,
	dashboardEvents chan<- api.DashboardEvent,
) *Maker {
	return &Maker{
		cfg:             cfg,
		marketInfo:      info,
		inventory:       inventory,
		riskMgr:         riskMgr,
		flowTracker:     NewFlowTracker(cfg.FlowWindow, cfg.FlowToxicityThreshold, cfg.FlowCooldownPeriod, cfg.FlowMaxSpreadMultiplier),
		dashboardEvents: dashboardEvents,
		logger: logger.With(
			"component", "maker",
			"market", info.Slug,
		),
	}
}

// assetID is the token this Maker quotes. Only the YES side is quoted
// directly; a SELL order on this token is the synthetic "sell YES" leg.
func (m *Maker) assetID() string {
	return m.marketInfo.YesTokenID
}

// ResetFlowTracking clears accumulated fill history and toxicity cooldown
// state. Called by the engine when this Maker's market slot is stopped.
func (m *Maker) ResetFlowTracking() {
	m.flowTracker.Reset()
}

// Run drives the periodic quoting loop. Blocks until ctx is cancelled.
// Fills and order events arrive separately via OnUserTrade/OnUserOrder.
func (m *Maker) Run(ctx context.Context, sc *Context) {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	m.logger.Info("strategy started",
		"tick_size", m.marketInfo.TickSize,
		"order_size", m.cfg.OrderSizeUSD,
	)

	for {
		select {
		case <-ctx.Done():
			m.cancelAllMyOrders(sc)
			m.logger.Info("strategy stopped")
			return

		case <-ticker.C:
			m.quoteUpdate(sc)
		}
	}
}

// quoteUpdate is the core per-tick logic.
func (m *Maker) quoteUpdate(sc *Context) {
	assetID := m.assetID()

	if sc.IsStale(assetID, m.cfg.StaleBookTimeout) {
		m.logger.Warn("book is stale, cancelling all orders")
		m.cancelAllMyOrders(sc)
		return
	}

	mid, ok := sc.Midpoint(assetID)
	if !ok {
		m.logger.Debug("no mid price available")
		return
	}

	m.inventory.UpdateMarkToMarket(mid)

	pos := m.inventory.Snapshot()
	exposureUSD := m.inventory.TotalExposureUSD(mid)
	m.riskMgr.Report(risk.PositionReport{
		MarketID:      m.marketInfo.ConditionID,
		YesQty:        pos.YesQty,
		NoQty:         pos.NoQty,
		MidPrice:      mid,
		ExposureUSD:   exposureUSD,
		UnrealizedPnL: pos.UnrealizedPnL,
		RealizedPnL:   pos.RealizedPnL,
		Timestamp:     time.Now(),
	})

	posSnapshot := api.PositionSnapshot{
		YesQty:        pos.YesQty,
		NoQty:         pos.NoQty,
		AvgEntryYes:   pos.AvgEntryYes,
		AvgEntryNo:    pos.AvgEntryNo,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: pos.UnrealizedPnL,
		ExposureUSD:   exposureUSD,
		Skew:          m.inventory.NetDelta(),
		LastUpdated:   pos.LastUpdated,
	}
	m.emitDashboardEvent(api.DashboardEvent{
		Type:      "position",
		Timestamp: time.Now(),
		MarketID:  m.marketInfo.ConditionID,
		Data:      api.NewPositionEvent(posSnapshot, m.marketInfo.Slug, mid),
	})

	if m.riskMgr.IsKillSwitchActive() {
		m.logger.Warn("kill switch active, cancelling all orders")
		m.cancelAllMyOrders(sc)
		return
	}

	remaining := m.riskMgr.RemainingBudget(m.marketInfo.ConditionID)
	if remaining <= 0 {
		m.logger.Info("risk budget exhausted")
		m.cancelAllMyOrders(sc)
		return
	}

	quotes, err := m.computeQuotes(mid, remaining)
	if err != nil {
		m.logger.Error("compute quotes failed", "error", err)
		return
	}

	m.reconcileOrders(sc, quotes)
}

// computeQuotes implements the Avellaneda-Stoikov model for binary markets.
//
// Variables:
//
//	q     = inventory skew in [-1, 1] from NetDelta()
//	gamma = risk aversion (higher = stronger inventory skew, less inventory
//	        risk; whether the spread widens or tightens depends on sigma, T, k)
//	sigma = estimated volatility
//	k     = order arrival intensity
//	T     = time horizon
//
// Formulas:
//
//	reservation_price = mid - q * gamma * sigma^2 * T
//	optimal_spread    = gamma * sigma^2 * T + (2/gamma) * ln(1 + gamma/k)
//	bid = reservation_price - optimal_spread/2
//	ask = reservation_price + optimal_spread/2
func (m *Maker) computeQuotes(mid, remainingBudget float64) (*types.QuotePair, error) {
	q := m.inventory.NetDelta() // [-1, 1]
	gamma := m.cfg.Gamma
	sigma := m.cfg.Sigma
	k := m.cfg.K
	T := m.cfg.T
	minSpread := float64(m.cfg.DefaultSpreadBps) / 10000.0
	tickDec := m.marketInfo.TickSize.Decimals()
	tick := math.Pow(10, -float64(tickDec))

	// Phase 1: Apply flow toxicity adjustment
	flowMultiplier := m.flowTracker.GetSpreadMultiplier()
	minSpread *= flowMultiplier

	// Step 1: Reservation price
	reservationPrice := mid - q*gamma*sigma*sigma*T

	// Step 2: Optimal spread (with toxicity adjustment)
	optSpread := gamma*sigma*sigma*T + (2.0/gamma)*math.Log(1+gamma/k)
	optSpread *= flowMultiplier // Widen spread when flow is toxic

	// Step 3: Raw bid/ask
	bidRaw := reservationPrice - optSpread/2
	askRaw := reservationPrice + optSpread/2

	// Step 4: Enforce minimum spread
	if (askRaw - bidRaw) < minSpread {
		bidRaw = reservationPrice - minSpread/2
		askRaw = reservationPrice + minSpread/2
	}

	// Step 5: Clamp to valid price range [tick, 1-tick]
	bidRaw = clamp(bidRaw, tick, 1-tick)
	askRaw = clamp(askRaw, tick, 1-tick)

	if bidRaw >= askRaw {
		bidRaw = askRaw - tick
	}
	if bidRaw < tick {
		bidRaw = tick
	}

	// Step 6: Round to tick size
	bidPrice := roundDownToTick(bidRaw, tickDec)
	askPrice := roundUpToTick(askRaw, tickDec)

	if bidPrice >= askPrice {
		askPrice = bidPrice + tick
	}

	// Step 7: Compute size
	absQ := math.Abs(q)
	sizeFactor := 1.0 - 0.5*absQ // reduce size when heavily positioned
	baseSize := m.cfg.OrderSizeUSD / mid
	bidSize := math.Max(baseSize*sizeFactor, m.marketInfo.MinOrderSize)
	askSize := math.Max(baseSize*sizeFactor, m.marketInfo.MinOrderSize)

	maxBidSize := remainingBudget / bidPrice
	maxAskSize := remainingBudget / askPrice
	bidSize = math.Min(bidSize, maxBidSize)
	askSize = math.Min(askSize, maxAskSize)
	totalNotional := bidSize*bidPrice + askSize*askPrice
	if totalNotional > remainingBudget && totalNotional > 0 {
		scale := remainingBudget / totalNotional
		bidSize *= scale
		askSize *= scale
	}

	var bid, ask *types.UserOrder

	if bidSize >= m.marketInfo.MinOrderSize && bidPrice > 0 && bidPrice < 1 {
		bid = &types.UserOrder{
			TokenID:   m.marketInfo.YesTokenID,
			Price:     bidPrice,
			Size:      bidSize,
			Side:      types.BUY,
			OrderType: types.OrderTypeGTC,
			TickSize:  m.marketInfo.TickSize,
		}
	}

	if askSize >= m.marketInfo.MinOrderSize && askPrice > 0 && askPrice < 1 {
		ask = &types.UserOrder{
			TokenID:   m.marketInfo.YesTokenID,
			Price:     askPrice,
			Size:      askSize,
			Side:      types.SELL,
			OrderType: types.OrderTypeGTC,
			TickSize:  m.marketInfo.TickSize,
		}
	}

	toxicity := m.flowTracker.CalculateToxicity()

	m.logger.Debug("quotes computed",
		"mid", mid,
		"q", q,
		"reservation", reservationPrice,
		"bid", bidPrice,
		"ask", askPrice,
		"bid_size", bidSize,
		"ask_size", askSize,
		"spread", askPrice-bidPrice,
		"toxicity_score", toxicity.ToxicityScore,
		"directional_imbalance", toxicity.DirectionalImbalance,
		"fill_velocity", toxicity.FillVelocity,
		"flow_spread_multiplier", flowMultiplier,
	)

	return &types.QuotePair{
		MarketID:    m.marketInfo.ConditionID,
		YesTokenID:  m.marketInfo.YesTokenID,
		NoTokenID:   m.marketInfo.NoTokenID,
		Bid:         bid,
		Ask:         ask,
		GeneratedAt: time.Now(),
	}, nil
}

// reconcileOrders diffs desired quotes against this asset's active intents,
// reading them from the lifecycle manager through Context. An existing
// intent is kept if its price is within one tick and its size is within 10%
// of the desired size; everything else is cancelled, and an unmatched
// desired side is placed. Place/cancel calls are non-blocking — the
// lifecycle manager dispatches and reconciles asynchronously.
func (m *Maker) reconcileOrders(sc *Context, desired *types.QuotePair) {
	assetID := m.assetID()
	tick := math.Pow(10, -float64(m.marketInfo.TickSize.Decimals()))
	const sizeTolerance = 0.10

	m.reconcileSide(sc, assetID, types.BUY, desired.Bid, tick, sizeTolerance)
	m.reconcileSide(sc, assetID, types.SELL, desired.Ask, tick, sizeTolerance)
}

func (m *Maker) reconcileSide(sc *Context, assetID string, side types.Side, desired *types.UserOrder, tick, sizeTolerance float64) {
	matched := false
	for _, intent := range sc.ActiveOrders(assetID, side) {
		price := float64(intent.PriceMillis) / 1000
		size := float64(intent.SizeMillis-intent.SizeFilled) / 1000

		if desired != nil && !matched &&
			math.Abs(price-desired.Price) <= tick &&
			desired.Size > 0 && math.Abs(size-desired.Size)/desired.Size <= sizeTolerance {
			matched = true
			continue
		}

		if err := sc.CancelOrders(assetID, side, price, size); err != nil {
			if err != lifecycle.ErrUnconfirmedIntent {
				m.logger.Warn("cancel intent failed", "side", side, "price", price, "error", err)
			}
		}
	}

	if desired != nil && !matched {
		if err := sc.PlaceLimitOrder(assetID, side, desired.Price, desired.Size, desired.TickSize, m.marketInfo.NegRisk); err != nil {
			m.logger.Error("place order failed", "side", side, "price", desired.Price, "size", desired.Size, "error", err)
		}
	}
}

// OnUserTrade processes a fill against this market's YES token.
func (m *Maker) OnUserTrade(sc *Context, _ events.Listener, trade *types.TradePayload) {
	if trade.AssetID != m.assetID() {
		return
	}

	price, _ := strconv.ParseFloat(trade.Price, 64)
	size, _ := strconv.ParseFloat(trade.Size, 64)

	fill := Fill{
		Timestamp: time.Now(),
		Side:      types.Side(trade.Side),
		TokenID:   trade.AssetID,
		Price:     price,
		Size:      size,
		TradeID:   trade.ID,
	}

	m.inventory.OnFill(fill)
	m.flowTracker.AddFill(fill)

	pos := m.inventory.Snapshot()

	toxicity := m.flowTracker.CalculateToxicity()
	if toxicity.IsAverse {
		m.logger.Warn("toxic flow detected",
			"side", trade.Side,
			"toxicity_score", toxicity.ToxicityScore,
			"directional_imbalance", toxicity.DirectionalImbalance,
			"fill_velocity", toxicity.FillVelocity,
			"fill_count", m.flowTracker.GetFillCount(),
		)
	}

	m.logger.Info("fill",
		"side", trade.Side,
		"price", price,
		"size", size,
		"outcome", trade.Outcome,
		"yes_qty", pos.YesQty,
		"no_qty", pos.NoQty,
		"realized_pnl", pos.RealizedPnL,
	)

	mid, _ := sc.Midpoint(m.assetID())
	unrealizedPnL := pos.YesQty*(mid-pos.AvgEntryYes) + pos.NoQty*((1-mid)-pos.AvgEntryNo)

	posSnapshot := api.PositionSnapshot{
		YesQty:        pos.YesQty,
		NoQty:         pos.NoQty,
		AvgEntryYes:   pos.AvgEntryYes,
		AvgEntryNo:    pos.AvgEntryNo,
		RealizedPnL:   pos.RealizedPnL,
		UnrealizedPnL: unrealizedPnL,
		LastUpdated:   pos.LastUpdated,
	}

	m.emitDashboardEvent(api.DashboardEvent{
		Type:      "fill",
		Timestamp: time.Now(),
		MarketID:  m.marketInfo.ConditionID,
		Data:      api.NewFillEvent(trade, posSnapshot, m.marketInfo.Slug, price, size),
	})
}

// OnUserOrder observes lifecycle transitions for this market's orders.
// Intent bookkeeping itself lives in internal/lifecycle.Manager (which
// reconciles directly against the user stream); this hook only exists for
// dashboard/inventory-adjacent bookkeeping a concrete strategy might want.
func (m *Maker) OnUserOrder(_ *Context, _ events.Listener, order *types.UserOrderEvent) {
	if order.AssetID != m.marketInfo.YesTokenID && order.AssetID != m.marketInfo.NoTokenID {
		return
	}
	m.logger.Debug("order event", "type", order.OrderEventType, "id", order.ID, "status", order.Status)

	tokenType := "YES"
	if order.AssetID == m.marketInfo.NoTokenID {
		tokenType = "NO"
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	size, _ := strconv.ParseFloat(order.OriginalSize, 64)

	m.emitDashboardEvent(api.DashboardEvent{
		Type:      "order",
		Timestamp: time.Now(),
		MarketID:  m.marketInfo.ConditionID,
		Data:      api.NewOrderEvent(order.ID, string(order.OrderEventType), order.Side, tokenType, price, size),
	})
}

// cancelAllMyOrders cancels every locally tracked intent for this market.
func (m *Maker) cancelAllMyOrders(sc *Context) {
	assetID := m.assetID()
	count := 0
	for _, side := range []types.Side{types.BUY, types.SELL} {
		for _, intent := range sc.ActiveOrders(assetID, side) {
			price := float64(intent.PriceMillis) / 1000
			size := float64(intent.SizeMillis-intent.SizeFilled) / 1000
			if err := sc.CancelOrders(assetID, side, price, size); err != nil {
				if err != lifecycle.ErrUnconfirmedIntent {
					m.logger.Warn("cancel intent failed", "side", side, "error", err)
				}
				continue
			}
			count++
		}
	}
	if count > 0 {
		m.logger.Info("cancelling orders", "count", count)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundDownToTick(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Floor(v*pow) / pow
}

func roundUpToTick(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Ceil(v*pow) / pow
}

// emitDashboardEvent sends an event to the dashboard (non-blocking).
func (m *Maker) emitDashboardEvent(evt api.DashboardEvent) {
	if m.dashboardEvents == nil {
		return
	}

	select {
	case m.dashboardEvents <- evt:
	default:
		// Dashboard can't keep up, drop event
	}
}
