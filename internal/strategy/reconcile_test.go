package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	ibook "polymarket-mm/internal/book"
	"polymarket-mm/internal/lifecycle"
	"polymarket-mm/pkg/types"
)

type fakeExchangeClient struct {
	mu          sync.Mutex
	placeCalls  int
	cancelCalls int
}

func (f *fakeExchangeClient) PostOrders(_ context.Context, _ []types.UserOrder, _ bool) ([]types.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	return []types.OrderResponse{{Success: true, OrderID: "ex-1"}}, nil
}

func (f *fakeExchangeClient) CancelOrders(_ context.Context, ids []string) (*types.CancelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return &types.CancelResponse{Canceled: ids}, nil
}

func (f *fakeExchangeClient) counts() (place, cancel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.placeCalls, f.cancelCalls
}

// fakeBookSource always reports no book, matching what reconcileOrders
// needs since it reads solely through Context.ActiveOrders/PlaceLimitOrder.
type fakeBookSource struct{}

func (fakeBookSource) BookFor(string) *ibook.Book { return nil }

func testContext(client lifecycle.ExchangeClient) *Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := lifecycle.NewManager(client, 0, logger)
	return NewContext(fakeBookSource{}, mgr, logger)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReconcileOrdersPlacesBothSidesWhenNoneExist(t *testing.T) {
	t.Parallel()
	cfg := testStrategyConfig()
	info := testMarketInfo()
	m := setupMaker(cfg, info)
	client := &fakeExchangeClient{}
	sc := testContext(client)

	desired := &types.QuotePair{
		Bid: &types.UserOrder{TokenID: info.YesTokenID, Side: types.BUY, Price: 0.45, Size: 10, TickSize: types.Tick001},
		Ask: &types.UserOrder{TokenID: info.YesTokenID, Side: types.SELL, Price: 0.55, Size: 10, TickSize: types.Tick001},
	}

	m.reconcileOrders(sc, desired)

	waitForCondition(t, func() bool {
		place, _ := client.counts()
		return place == 2
	})
}

func TestReconcileOrdersKeepsMatchingIntent(t *testing.T) {
	t.Parallel()
	cfg := testStrategyConfig()
	info := testMarketInfo()
	m := setupMaker(cfg, info)
	client := &fakeExchangeClient{}
	sc := testContext(client)

	bid := &types.UserOrder{TokenID: info.YesTokenID, Side: types.BUY, Price: 0.45, Size: 10, TickSize: types.Tick001}
	if err := sc.PlaceLimitOrder(info.YesTokenID, types.BUY, bid.Price, bid.Size, bid.TickSize, false); err != nil {
		t.Fatalf("PlaceLimitOrder: %v", err)
	}
	waitForCondition(t, func() bool {
		place, _ := client.counts()
		return place == 1
	})

	m.reconcileOrders(sc, &types.QuotePair{Bid: bid})

	time.Sleep(20 * time.Millisecond)
	place, cancel := client.counts()
	if place != 1 {
		t.Errorf("expected no additional place calls for a matching intent, got %d", place)
	}
	if cancel != 0 {
		t.Errorf("expected no cancel calls for a matching intent, got %d", cancel)
	}
}

func TestReconcileOrdersCancelsUnmatchedIntent(t *testing.T) {
	t.Parallel()
	cfg := testStrategyConfig()
	info := testMarketInfo()
	m := setupMaker(cfg, info)
	client := &fakeExchangeClient{}
	sc := testContext(client)

	if err := sc.PlaceLimitOrder(info.YesTokenID, types.BUY, 0.45, 10, types.Tick001, false); err != nil {
		t.Fatalf("PlaceLimitOrder: %v", err)
	}
	waitForCondition(t, func() bool {
		place, _ := client.counts()
		return place == 1
	})

	// Desired bid moved well outside tick tolerance of the resting intent.
	m.reconcileOrders(sc, &types.QuotePair{
		Bid: &types.UserOrder{TokenID: info.YesTokenID, Side: types.BUY, Price: 0.30, Size: 10, TickSize: types.Tick001},
	})

	waitForCondition(t, func() bool {
		_, cancel := client.counts()
		return cancel == 1
	})
}

func TestOnUserTradeIgnoresOtherAsset(t *testing.T) {
	t.Parallel()
	cfg := testStrategyConfig()
	info := testMarketInfo()
	m := setupMaker(cfg, info)
	sc := testContext(&fakeExchangeClient{})

	m.OnUserTrade(sc, 0, &types.TradePayload{AssetID: "some-other-token", Side: "BUY", Price: "0.5", Size: "10"})

	pos := m.inventory.Snapshot()
	if pos.YesQty != 0 {
		t.Errorf("expected no fill applied for a different asset, got yes_qty=%v", pos.YesQty)
	}
}

func TestOnUserTradeAppliesFillForOwnAsset(t *testing.T) {
	t.Parallel()
	cfg := testStrategyConfig()
	info := testMarketInfo()
	m := setupMaker(cfg, info)
	sc := testContext(&fakeExchangeClient{})

	m.OnUserTrade(sc, 0, &types.TradePayload{AssetID: info.YesTokenID, Side: "BUY", Price: "0.5", Size: "10"})

	pos := m.inventory.Snapshot()
	if pos.YesQty != 10 {
		t.Errorf("expected yes_qty=10 after fill, got %v", pos.YesQty)
	}
}

func TestCancelAllMyOrdersCancelsEveryRestingIntent(t *testing.T) {
	t.Parallel()
	cfg := testStrategyConfig()
	info := testMarketInfo()
	m := setupMaker(cfg, info)
	client := &fakeExchangeClient{}
	sc := testContext(client)

	if err := sc.PlaceLimitOrder(info.YesTokenID, types.BUY, 0.45, 10, types.Tick001, false); err != nil {
		t.Fatalf("PlaceLimitOrder bid: %v", err)
	}
	if err := sc.PlaceLimitOrder(info.YesTokenID, types.SELL, 0.55, 10, types.Tick001, false); err != nil {
		t.Fatalf("PlaceLimitOrder ask: %v", err)
	}
	waitForCondition(t, func() bool {
		place, _ := client.counts()
		return place == 2
	})

	m.cancelAllMyOrders(sc)

	waitForCondition(t, func() bool {
		_, cancel := client.counts()
		return cancel == 2
	})
}
