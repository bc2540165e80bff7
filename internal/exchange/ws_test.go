package exchange

import (
	"io"
	"log/slog"
	"sort"
	"testing"

	"polymarket-mm/internal/events"
)

func testFeedSender() (events.CountingSender, chan events.Event) {
	ch := make(chan events.Event, 8)
	pending := new(int64)
	return events.NewCountingSender(ch, pending), ch
}

// TestWSFeedEmitClearNamesSubscribedAssets exercises spec.md §8 scenario 4:
// on reconnect, the listener must emit a Clear event naming every asset it
// was responsible for, so strategies never read stale book state across the
// drop.
func TestWSFeedEmitClearNamesSubscribedAssets(t *testing.T) {
	t.Parallel()
	sender, ch := testFeedSender()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewMarketFeed("wss://example.invalid", sender, logger)

	f.subscribed["yes-token"] = true
	f.subscribed["no-token"] = true

	f.emitClear()

	select {
	case ev := <-ch:
		if ev.Kind != events.KindMarketClear {
			t.Fatalf("Kind = %v, want KindMarketClear", ev.Kind)
		}
		if ev.Listener != events.PolyMarketLegacy {
			t.Errorf("Listener = %v, want PolyMarketLegacy", ev.Listener)
		}
		got := append([]string(nil), ev.AssetIDs...)
		sort.Strings(got)
		want := []string{"no-token", "yes-token"}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("AssetIDs = %v, want %v", got, want)
		}
	default:
		t.Fatal("expected a Clear event on the sender channel, got none")
	}
}

// TestWSFeedEmitClearSkipsEmptySubscription covers the no-op path: a feed
// that was never subscribed to anything has nothing stale to clear.
func TestWSFeedEmitClearSkipsEmptySubscription(t *testing.T) {
	t.Parallel()
	sender, ch := testFeedSender()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := NewMarketFeed("wss://example.invalid", sender, logger)

	f.emitClear()

	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got %+v", ev)
	default:
	}
}
