package eip712

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"polymarket-mm/pkg/types"
)

// Order is the 12-field EIP-712 struct the Polymarket CTF Exchange expects.
// Field order matters: it determines both the type string and the struct
// hash's byte layout.
type Order struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8 // 0 = BUY, 1 = SELL
	SignatureType uint8
}

var orderTypeHash = crypto.Keccak256([]byte(
	"Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId," +
		"uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce," +
		"uint256 feeRateBps,uint8 side,uint8 signatureType)",
))

// SideValue maps the logical Side to the EIP-712 uint8 encoding.
func SideValue(side types.Side) uint8 {
	if side == types.SELL {
		return 1
	}
	return 0
}

// StructHash computes keccak256(type_hash ‖ abi_encode(twelve_fields)).
func (o Order) StructHash() [32]byte {
	buf := make([]byte, 0, 32*12)
	salt := uint256Bytes(o.Salt)
	maker := addressBytes(o.Maker)
	signer := addressBytes(o.Signer)
	taker := addressBytes(o.Taker)
	tokenID := uint256Bytes(o.TokenID)
	makerAmt := uint256Bytes(o.MakerAmount)
	takerAmt := uint256Bytes(o.TakerAmount)
	expiration := uint256Bytes(o.Expiration)
	nonce := uint256Bytes(o.Nonce)
	feeRateBps := uint256Bytes(o.FeeRateBps)
	side := byteBytes(o.Side)
	sigType := byteBytes(o.SignatureType)

	buf = append(buf, salt[:]...)
	buf = append(buf, maker[:]...)
	buf = append(buf, signer[:]...)
	buf = append(buf, taker[:]...)
	buf = append(buf, tokenID[:]...)
	buf = append(buf, makerAmt[:]...)
	buf = append(buf, takerAmt[:]...)
	buf = append(buf, expiration[:]...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, feeRateBps[:]...)
	buf = append(buf, side[:]...)
	buf = append(buf, sigType[:]...)

	var out [32]byte
	copy(out[:], crypto.Keccak256(append(append([]byte{}, orderTypeHash...), buf...)))
	return out
}

// Digest computes keccak256(0x19 ‖ 0x01 ‖ domain_separator ‖ struct_hash).
func (o Order) Digest(negRisk bool) [32]byte {
	domain := DomainSeparator(negRisk)
	structHash := o.StructHash()

	msg := make([]byte, 0, 2+32+32)
	msg = append(msg, 0x19, 0x01)
	msg = append(msg, domain[:]...)
	msg = append(msg, structHash[:]...)

	var out [32]byte
	copy(out[:], crypto.Keccak256(msg))
	return out
}

// Sign produces the 65-byte r‖s‖v signature over the order's digest, with v
// normalized to 27/28 as the exchange expects.
func Sign(order Order, negRisk bool, privateKey *ecdsa.PrivateKey) (string, error) {
	digest := order.Digest(negRisk)

	sig, err := crypto.Sign(digest[:], privateKey)
	if err != nil {
		return "", fmt.Errorf("sign order digest: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}
