package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"polymarket-mm/pkg/types"
)

type fakeClient struct {
	mu            sync.Mutex
	placeCalls    int
	placeResponse []types.OrderResponse
	placeErr      error
	cancelCalls   int
	cancelResp    *types.CancelResponse
	cancelErr     error
}

func (f *fakeClient) PostOrders(_ context.Context, _ []types.UserOrder, _ bool) ([]types.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	return f.placeResponse, f.placeErr
}

func (f *fakeClient) CancelOrders(_ context.Context, _ []string) (*types.CancelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelResp, f.cancelErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
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

func newManager(client *fakeClient) *Manager {
	return NewManager(client, 0, testLogger())
}

func TestRequestPlaceSuccessTransitionsToLive(t *testing.T) {
	client := &fakeClient{placeResponse: []types.OrderResponse{{Success: true, OrderID: "ex-1"}}}
	m := newManager(client)

	order := types.UserOrder{TokenID: "asset-1", Price: 0.5, Size: 10, Side: types.BUY, TickSize: types.Tick001}
	if err := m.RequestPlace("asset-1", types.BUY, 0.5, 10, types.Tick001, false, order); err != nil {
		t.Fatalf("RequestPlace: %v", err)
	}

	waitFor(t, func() bool {
		intent, ok := m.assetOrdersFor("asset-1").bids.get(keyFor(500, 10000))
		return ok && intent.State == types.Live && intent.ExchangeID == "ex-1"
	})
}

func TestRequestPlaceDuplicateRejected(t *testing.T) {
	client := &fakeClient{placeResponse: []types.OrderResponse{{Success: true, OrderID: "ex-1"}}}
	m := newManager(client)

	order := types.UserOrder{TokenID: "asset-1", Price: 0.5, Size: 10, Side: types.BUY, TickSize: types.Tick001}
	if err := m.RequestPlace("asset-1", types.BUY, 0.5, 10, types.Tick001, false, order); err != nil {
		t.Fatalf("first RequestPlace: %v", err)
	}
	err := m.RequestPlace("asset-1", types.BUY, 0.5, 10, types.Tick001, false, order)
	if !errors.Is(err, ErrDuplicateIntent) {
		t.Fatalf("second RequestPlace error = %v, want ErrDuplicateIntent", err)
	}
}

func TestRequestPlaceFailureRemovesIntent(t *testing.T) {
	client := &fakeClient{placeErr: errors.New("network error")}
	m := newManager(client)

	order := types.UserOrder{TokenID: "asset-1", Price: 0.5, Size: 10, Side: types.BUY, TickSize: types.Tick001}
	if err := m.RequestPlace("asset-1", types.BUY, 0.5, 10, types.Tick001, false, order); err != nil {
		t.Fatalf("RequestPlace: %v", err)
	}

	waitFor(t, func() bool {
		_, ok := m.assetOrdersFor("asset-1").bids.get(keyFor(500, 10000))
		return !ok
	})
}

func TestRequestCancelUnconfirmedReturnsError(t *testing.T) {
	client := &fakeClient{}
	m := newManager(client)
	ao := m.assetOrdersFor("asset-1")
	ao.bids.insert(keyFor(500, 10000), &Intent{AssetID: "asset-1", Side: types.BUY, PriceMillis: 500, SizeMillis: 10000, State: types.Unconfirmed})

	err := m.RequestCancel("asset-1", types.BUY, 0.5, 10)
	if !errors.Is(err, ErrUnconfirmedIntent) {
		t.Fatalf("RequestCancel error = %v, want ErrUnconfirmedIntent", err)
	}
}

func TestRequestCancelNotFound(t *testing.T) {
	m := newManager(&fakeClient{})
	err := m.RequestCancel("asset-1", types.BUY, 0.5, 10)
	if !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("RequestCancel error = %v, want ErrIntentNotFound", err)
	}
}

func TestRequestCancelFailureRestoresLive(t *testing.T) {
	client := &fakeClient{cancelErr: errors.New("network error")}
	m := newManager(client)
	ao := m.assetOrdersFor("asset-1")
	k := keyFor(500, 10000)
	ao.bids.insert(k, &Intent{AssetID: "asset-1", Side: types.BUY, PriceMillis: 500, SizeMillis: 10000, State: types.Live, ExchangeID: "ex-1"})

	if err := m.RequestCancel("asset-1", types.BUY, 0.5, 10); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	waitFor(t, func() bool {
		intent, ok := ao.bids.get(k)
		return ok && intent.State == types.Live
	})
}

func TestRequestCancelSuccessRemovesIntent(t *testing.T) {
	client := &fakeClient{cancelResp: &types.CancelResponse{Canceled: []string{"ex-1"}}}
	m := newManager(client)
	ao := m.assetOrdersFor("asset-1")
	k := keyFor(500, 10000)
	ao.bids.insert(k, &Intent{AssetID: "asset-1", Side: types.BUY, PriceMillis: 500, SizeMillis: 10000, State: types.Live, ExchangeID: "ex-1"})

	if err := m.RequestCancel("asset-1", types.BUY, 0.5, 10); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	waitFor(t, func() bool {
		_, ok := ao.bids.get(k)
		return !ok
	})
}

func TestPositionFloorsAtZero(t *testing.T) {
	m := newManager(&fakeClient{})
	m.adjustPosition("asset-1", -5000)
	pos := m.Position("asset-1")
	if pos.SizeMillis != 0 {
		t.Errorf("position = %d, want 0 (floored)", pos.SizeMillis)
	}
}

func TestMillisOfRoundsNotTruncates(t *testing.T) {
	if got := millisOf(0.5006); got != 501 {
		t.Errorf("millisOf(0.5006) = %d, want 501 (round, not truncate)", got)
	}
}
