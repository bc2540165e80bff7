package eip712

import (
	"crypto/rand"
	"math/big"
)

// maxSalt bounds generated salts to fit comfortably within a uint256 field
// while giving an astronomically low collision probability within a
// session, per spec.md §4.3's resolved Open Question (a random 64-bit value
// is preferred over the reference's timestamp×rand() formula).
var maxSalt = new(big.Int).Lsh(big.NewInt(1), 64)

// NewSalt returns a random 64-bit salt suitable for a single order.
func NewSalt() (*big.Int, error) {
	return rand.Int(rand.Reader, maxSalt)
}
