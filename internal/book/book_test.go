package book

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"polymarket-mm/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSnapshotThenCross reproduces scenario 1 from spec.md §8.
func TestSnapshotThenCross(t *testing.T) {
	b := New("asset-1", types.Tick001, testLogger())
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.50", Size: "100"}},
		[]types.PriceLevel{{Price: "0.52", Size: "100"}},
		time.Now(),
	)

	b.ApplyPriceChange(types.BUY, 530, 50, time.Now())

	bestBid, ok := b.BestBid()
	if !ok || bestBid.PriceMillis != 530 {
		t.Fatalf("best bid = %+v, ok=%v; want price 530", bestBid, ok)
	}
	if size := b.bids[500]; size != 100000 {
		t.Errorf("bids[500] = %d, want 100000 (original level retained)", size)
	}
	if _, ok := b.BestAsk(); ok {
		t.Error("expected asks to be empty after crossed-book repair")
	}
}

// TestFeasibleSkip reproduces scenario 2 from spec.md §8.
func TestFeasibleSkip(t *testing.T) {
	b := New("asset-1", types.Tick001, testLogger())
	b.ApplySnapshot(
		[]types.PriceLevel{
			{Price: "0.60", Size: "0.001"},
			{Price: "0.59", Size: "0.001"},
			{Price: "0.58", Size: "10"},
		},
		nil,
		time.Now(),
	)

	lvl, ok := b.BestFeasibleBid()
	if !ok {
		t.Fatal("expected a feasible bid")
	}
	if lvl.PriceMillis != 580 {
		t.Errorf("feasible bid price = %d, want 580 (0.58)", lvl.PriceMillis)
	}
}

func TestApplyPriceChangeRemovesZeroSize(t *testing.T) {
	b := New("asset-1", types.Tick001, testLogger())
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.50", Size: "100"}},
		nil,
		time.Now(),
	)
	b.ApplyPriceChange(types.BUY, 500, 0, time.Now())

	if _, ok := b.BestBid(); ok {
		t.Error("expected bid removed after zero-size update")
	}
}

func TestMidpointAndSpread(t *testing.T) {
	b := New("asset-1", types.Tick001, testLogger())
	b.ApplySnapshot(
		[]types.PriceLevel{{Price: "0.48", Size: "10"}},
		[]types.PriceLevel{{Price: "0.52", Size: "10"}},
		time.Now(),
	)

	mid, ok := b.Midpoint()
	if !ok || mid != 500 {
		t.Errorf("midpoint = %d, ok=%v; want 500", mid, ok)
	}
	spread, ok := b.Spread()
	if !ok || spread != 40 {
		t.Errorf("spread = %d, ok=%v; want 40", spread, ok)
	}
}

func TestSetTickSizeDoesNotRequantize(t *testing.T) {
	b := New("asset-1", types.Tick001, testLogger())
	b.ApplySnapshot([]types.PriceLevel{{Price: "0.50", Size: "10"}}, nil, time.Now())
	b.SetTickSize(types.Tick0001)

	if b.TickSize() != types.Tick0001 {
		t.Fatalf("tick size = %s, want %s", b.TickSize(), types.Tick0001)
	}
	lvl, ok := b.BestBid()
	if !ok || lvl.PriceMillis != 500 {
		t.Errorf("existing level changed after tick size update: %+v", lvl)
	}
}

func TestIsStale(t *testing.T) {
	b := New("asset-1", types.Tick001, testLogger())
	if !b.IsStale(time.Second) {
		t.Error("book with no updates should be stale")
	}
	b.ApplySnapshot(nil, nil, time.Now())
	if b.IsStale(time.Minute) {
		t.Error("freshly updated book should not be stale")
	}
}
