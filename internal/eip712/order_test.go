package eip712

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"polymarket-mm/pkg/types"
)

// TestCanonicalOrderDigest reproduces the canonical test vector from
// spec.md §8. The source does not publish the private key behind the
// vector's signer address, so this test instead recovers the public key
// from the published signature over our own computed digest and checks it
// matches the claimed signer — which only holds if our digest (type hash,
// struct hash, domain separator, and field encoding) is byte-identical to
// the exchange's.
func TestCanonicalOrderDigest(t *testing.T) {
	tokenID, ok := new(big.Int).SetString(
		"104468181147316868388088006861839293041095272602974154655578369735976654024471", 10)
	if !ok {
		t.Fatal("failed to parse token id")
	}

	salt, ok := new(big.Int).SetString("1260445392909", 10)
	if !ok {
		t.Fatal("failed to parse salt")
	}

	order := Order{
		Salt:          salt,
		Maker:         common.HexToAddress("0xB0A60787710f8D6254dC0E304Fc72b6A3907e0C2"),
		Signer:        common.HexToAddress("0x59Bb2eca7dDC4553fA936129D3613b1aA340C278"),
		Taker:         common.HexToAddress("0x0000000000000000000000000000000000000000"),
		TokenID:       tokenID,
		MakerAmount:   big.NewInt(4715000),
		TakerAmount:   big.NewInt(5000000),
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          SideValue(types.BUY),
		SignatureType: 2,
	}

	digest := order.Digest(true)

	const canonicalSignature = "0xf12cf29df658868b426ecec75b7071b99e4862f84c92428e8bc56bf47f9831921a95ff1cd4b0fc3c9a22940b0c5d1d2ffc13ddb2f16fac58a30d884c3f552cef1b"
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(canonicalSignature, "0x"))
	if err != nil {
		t.Fatalf("decode canonical signature: %v", err)
	}
	if len(sigBytes) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sigBytes))
	}

	// crypto.SigToPub expects v in {0, 1}, not {27, 28}.
	recoverSig := make([]byte, 65)
	copy(recoverSig, sigBytes)
	if recoverSig[64] >= 27 {
		recoverSig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest[:], recoverSig)
	if err != nil {
		t.Fatalf("recover public key: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey)

	if recovered != order.Signer {
		t.Fatalf("recovered signer %s does not match canonical vector signer %s — digest computation diverges from the exchange's",
			recovered.Hex(), order.Signer.Hex())
	}
}

func TestSideValue(t *testing.T) {
	if SideValue(types.BUY) != 0 {
		t.Error("BUY must encode to 0")
	}
	if SideValue(types.SELL) != 1 {
		t.Error("SELL must encode to 1")
	}
}
