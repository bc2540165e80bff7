package exchange

import (
	"strings"
	"testing"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

func testAuth(t *testing.T) *Auth {
	t.Helper()
	cfg := config.Config{
		Wallet: config.WalletConfig{
			PrivateKey:    "0x1111111111111111111111111111111111111111111111111111111111111111",
			ChainID:       137,
			SignatureType: 0,
		},
		API: config.APIConfig{ApiKey: "k", Secret: "s", Passphrase: "p"},
	}
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestSignOrderProducesValidSignature(t *testing.T) {
	t.Parallel()
	auth := testAuth(t)

	signed, err := auth.SignOrder(types.UserOrder{
		TokenID:  "12345678901234567890",
		Price:    0.55,
		Size:     10,
		Side:     types.BUY,
		TickSize: types.Tick001,
	}, false)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if !strings.HasPrefix(signed.Signature, "0x") || len(signed.Signature) != 132 {
		t.Fatalf("signature = %q, want 0x-prefixed 65-byte hex", signed.Signature)
	}
	if signed.Maker != auth.FunderAddress().Hex() {
		t.Errorf("maker = %q, want funder address %q", signed.Maker, auth.FunderAddress().Hex())
	}
	if signed.Signer != auth.Address().Hex() {
		t.Errorf("signer = %q, want EOA address %q", signed.Signer, auth.Address().Hex())
	}
}

func TestSignOrderAmountsMatchSide(t *testing.T) {
	t.Parallel()
	auth := testAuth(t)

	buy, err := auth.SignOrder(types.UserOrder{TokenID: "1", Price: 0.50, Size: 100, Side: types.BUY, TickSize: types.Tick001}, false)
	if err != nil {
		t.Fatalf("SignOrder BUY: %v", err)
	}
	if buy.MakerAmount.Cmp(buy.TakerAmount) >= 0 {
		t.Errorf("BUY makerAmount (%s) should be less than takerAmount (%s) at price 0.50", buy.MakerAmount, buy.TakerAmount)
	}

	sell, err := auth.SignOrder(types.UserOrder{TokenID: "1", Price: 0.50, Size: 100, Side: types.SELL, TickSize: types.Tick001}, false)
	if err != nil {
		t.Fatalf("SignOrder SELL: %v", err)
	}
	if sell.MakerAmount.Cmp(buy.TakerAmount) != 0 {
		t.Errorf("SELL makerAmount (%s) should equal BUY takerAmount (%s) for the same price/size", sell.MakerAmount, buy.TakerAmount)
	}
}

func TestSignOrderRejectsInvalidTokenID(t *testing.T) {
	t.Parallel()
	auth := testAuth(t)

	_, err := auth.SignOrder(types.UserOrder{TokenID: "not-a-number", Price: 0.5, Size: 1, Side: types.BUY, TickSize: types.Tick001}, false)
	if err == nil {
		t.Fatal("expected error for invalid token ID")
	}
}

func TestSignOrderDefaultsMissingTickSize(t *testing.T) {
	t.Parallel()
	auth := testAuth(t)

	signed, err := auth.SignOrder(types.UserOrder{TokenID: "1", Price: 0.5, Size: 1, Side: types.BUY}, false)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if signed.Signature == "" {
		t.Error("expected a signature even with TickSize unset")
	}
}
