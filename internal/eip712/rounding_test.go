package eip712

import (
	"testing"

	"polymarket-mm/pkg/types"
)

// TestAmountsBuyRounding reproduces scenario 5 from spec.md §8.
func TestAmountsBuyRounding(t *testing.T) {
	maker, taker, err := Amounts(types.BUY, 0.471, 10.0, types.Tick001)
	if err != nil {
		t.Fatalf("Amounts: %v", err)
	}
	if maker.Int64() != 4710000 {
		t.Errorf("makerAmount = %d, want 4710000", maker.Int64())
	}
	if taker.Int64() != 10000000 {
		t.Errorf("takerAmount = %d, want 10000000", taker.Int64())
	}
}

func TestAmountsSellMirrorsBuy(t *testing.T) {
	// SELL swaps maker/taker roles: maker is the token size, taker is the
	// USDC proceeds, so SELL at the same price/size produces the BUY case's
	// amounts with maker and taker swapped.
	maker, taker, err := Amounts(types.SELL, 0.471, 10.0, types.Tick001)
	if err != nil {
		t.Fatalf("Amounts: %v", err)
	}
	if maker.Int64() != 10000000 {
		t.Errorf("makerAmount = %d, want 10000000", maker.Int64())
	}
	if taker.Int64() != 4710000 {
		t.Errorf("takerAmount = %d, want 4710000", taker.Int64())
	}
}

func TestAmountsUnknownSide(t *testing.T) {
	if _, _, err := Amounts(types.Side("HOLD"), 0.5, 1.0, types.Tick001); err == nil {
		t.Error("expected error for unknown side")
	}
}
