package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"polymarket-mm/internal/eip712"
	"polymarket-mm/pkg/types"
)

// ErrDuplicateIntent is returned by RequestPlace when an intent already
// exists at the given (asset, side, price, size).
var ErrDuplicateIntent = errors.New("lifecycle: an order already exists at this price and size")

// ErrRateLimited is returned when the per-intent gate denies a slot.
var ErrRateLimited = errors.New("lifecycle: rate limited")

// ErrIntentNotFound is returned by RequestCancel when no matching intent exists.
var ErrIntentNotFound = errors.New("lifecycle: no matching order intent")

// ErrUnconfirmedIntent is returned by RequestCancel when the intent has no
// exchange id yet — the caller must retry once it transitions to Live.
var ErrUnconfirmedIntent = errors.New("lifecycle: intent has no exchange id yet, retry later")

// ExchangeClient is the subset of internal/exchange.Client the lifecycle
// manager needs to place and cancel orders. Defined here (rather than
// depended on concretely) so tests can supply a fake.
type ExchangeClient interface {
	PostOrders(ctx context.Context, orders []types.UserOrder, negRisk bool) ([]types.OrderResponse, error)
	CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error)
}

// Manager is the Order Lifecycle Manager: it owns the intent registry, the
// place/cancel algorithms, and reconciliation against the user stream.
type Manager struct {
	client ExchangeClient
	gate   *IntentGate
	logger *slog.Logger

	mu     sync.RWMutex
	assets map[string]*assetOrders

	posMu     sync.Mutex
	positions map[string]*types.Position
}

// NewManager builds a Manager dispatching place/cancel HTTP calls through
// client, gated by a per-intent IntentGate with the given minimum interval
// between dispatches.
func NewManager(client ExchangeClient, minInterval time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		client:    client,
		gate:      NewIntentGate(minInterval),
		logger:    logger,
		assets:    make(map[string]*assetOrders),
		positions: make(map[string]*types.Position),
	}
}

func (m *Manager) assetOrdersFor(assetID string) *assetOrders {
	m.mu.RLock()
	ao, ok := m.assets[assetID]
	m.mu.RUnlock()
	if ok {
		return ao
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ao, ok = m.assets[assetID]; ok {
		return ao
	}
	ao = newAssetOrders()
	m.assets[assetID] = ao
	return ao
}

// RequestPlace runs the place algorithm from spec.md §4.4:
//  1. acquire a rate-limit slot
//  2. refuse if an intent already exists at (price, size) on this side
//  3. insert an Unconfirmed intent
//  4. build the signed order; a zero maker/taker amount deletes the intent and fails
//  5. dispatch the HTTP POST asynchronously; bind the exchange id on success,
//     delete the intent on failure
func (m *Manager) RequestPlace(assetID string, side types.Side, price, size float64, tickSize types.TickSize, negRisk bool, order types.UserOrder) error {
	if !m.gate.Acquire() {
		return ErrRateLimited
	}

	priceMillis := millisOf(price)
	sizeMillis := millisOf(size)
	k := keyFor(priceMillis, sizeMillis)
	ao := m.assetOrdersFor(assetID)
	sb := ao.sideBookFor(side)

	intent := &Intent{
		AssetID:     assetID,
		Side:        side,
		PriceMillis: priceMillis,
		SizeMillis:  sizeMillis,
		State:       types.Unconfirmed,
		CreatedAt:   time.Now(),
	}
	if !sb.insert(k, intent) {
		return ErrDuplicateIntent
	}

	makerAmt, takerAmt, err := eip712.Amounts(side, price, size, tickSize)
	if err != nil {
		sb.remove(k)
		return err
	}
	if makerAmt.Sign() == 0 || takerAmt.Sign() == 0 {
		sb.remove(k)
		return errors.New("lifecycle: order amounts round to zero")
	}

	go m.dispatchPlace(sb, k, order, negRisk)
	return nil
}

func (m *Manager) dispatchPlace(sb *sideBook, k key, order types.UserOrder, negRisk bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	responses, err := m.client.PostOrders(ctx, []types.UserOrder{order}, negRisk)
	if err != nil || len(responses) == 0 || !responses[0].Success || responses[0].OrderID == "" {
		sb.remove(k)
		if m.logger != nil {
			m.logger.Warn("order placement failed, intent removed", "asset", order.TokenID, "error", err)
		}
		return
	}

	if intent, ok := sb.get(k); ok {
		intent.mu.Lock()
		intent.ExchangeID = responses[0].OrderID
		intent.State = types.Live
		intent.mu.Unlock()
	}
}

// RequestCancel runs the cancel algorithm from spec.md §4.4.
func (m *Manager) RequestCancel(assetID string, side types.Side, price, size float64) error {
	k := keyFor(millisOf(price), millisOf(size))
	ao := m.assetOrdersFor(assetID)
	sb := ao.sideBookFor(side)

	intent, ok := sb.get(k)
	if !ok {
		return ErrIntentNotFound
	}

	intent.mu.Lock()
	if intent.ExchangeID == "" {
		intent.mu.Unlock()
		return ErrUnconfirmedIntent
	}
	intent.State = types.ToBeCanceled
	exchangeID := intent.ExchangeID
	intent.mu.Unlock()

	go m.dispatchCancel(sb, k, exchangeID)
	return nil
}

func (m *Manager) dispatchCancel(sb *sideBook, k key, exchangeID string) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()

	resp, err := m.client.CancelOrders(ctx, []string{exchangeID})
	confirmed := false
	if err == nil && resp != nil {
		for _, id := range resp.Canceled {
			if id == exchangeID {
				confirmed = true
				break
			}
		}
	}

	if confirmed {
		sb.remove(k)
		return
	}

	if intent, ok := sb.get(k); ok {
		intent.mu.Lock()
		intent.State = types.Live
		intent.mu.Unlock()
	}
	if m.logger != nil {
		m.logger.Warn("order cancellation failed or id not echoed, intent restored to Live", "exchange_id", exchangeID, "error", err)
	}
}

// ListIntents returns a snapshot of every locally tracked intent for
// assetID on the given side, in no particular order. Strategies use this
// to diff their desired quotes against what is actually resting before
// deciding whether to place or cancel.
func (m *Manager) ListIntents(assetID string, side types.Side) []Intent {
	ao := m.assetOrdersFor(assetID)
	return ao.sideBookFor(side).snapshotAll()
}

// Position returns the current tracked position for assetID.
func (m *Manager) Position(assetID string) types.Position {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	if p, ok := m.positions[assetID]; ok {
		return *p
	}
	return types.Position{AssetID: assetID}
}

// adjustPosition applies deltaMillis to assetID's position, flooring at zero
// per the resolved Open Question (CTF holdings are long-only).
func (m *Manager) adjustPosition(assetID string, deltaMillis int64) {
	m.posMu.Lock()
	defer m.posMu.Unlock()
	p, ok := m.positions[assetID]
	if !ok {
		p = &types.Position{AssetID: assetID}
		m.positions[assetID] = p
	}
	next := p.SizeMillis + deltaMillis
	if next < 0 {
		if m.logger != nil {
			m.logger.Warn("unsolicited sell would drive position negative, flooring at zero", "asset", assetID, "position", p.SizeMillis, "delta", deltaMillis)
		}
		next = 0
	}
	p.SizeMillis = next
	p.UpdatedAt = time.Now()
}
