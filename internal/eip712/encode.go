package eip712

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// uint256Bytes left-pads a non-negative integer to a 32-byte big-endian word,
// matching Solidity ABI encoding of a uint256.
func uint256Bytes(v *big.Int) [32]byte {
	var out [32]byte
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// addressBytes left-pads a 20-byte address to a 32-byte word.
func addressBytes(a common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], a.Bytes())
	return out
}

// byteBytes right-aligns a single byte value (e.g. side, 0 or 1) in a
// 32-byte word — identical in effect to uint256Bytes for a one-byte value,
// kept as a distinct name to match the spec's "uint8 left-padded to 32
// bytes" language for the side/signatureType fields.
func byteBytes(v uint8) [32]byte {
	var out [32]byte
	out[31] = v
	return out
}
