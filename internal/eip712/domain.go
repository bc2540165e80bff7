// Package eip712 builds and signs Polymarket CLOB orders: the EIP-712 typed
// data struct, the dual domain separators (standard vs neg-risk exchange),
// and the tick-aware amount rounding cascade that must reproduce the
// exchange's own integer math exactly.
package eip712

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	domainName    = "Polymarket CTF Exchange"
	domainVersion = "1"
	chainIDValue  = 137 // Polygon mainnet

	// StandardExchangeAddress is the verifying contract for ordinary binary
	// markets.
	StandardExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	// NegRiskExchangeAddress is the verifying contract for neg-risk markets
	// (mutually exclusive multi-outcome events).
	NegRiskExchangeAddress = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

var domainTypeHash = crypto.Keccak256([]byte(
	"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
))

// These are process-lifetime constants, computed once at init as the
// specification requires — the exchange addresses never change at runtime.
var (
	standardDomainSeparator = domainSeparator(StandardExchangeAddress)
	negRiskDomainSeparator  = domainSeparator(NegRiskExchangeAddress)
)

// domainSeparator computes keccak256(type_hash ‖ keccak256(name) ‖
// keccak256(version) ‖ chainId ‖ verifyingContract), each field 32 bytes.
func domainSeparator(verifyingContract string) [32]byte {
	nameHash := crypto.Keccak256([]byte(domainName))
	versionHash := crypto.Keccak256([]byte(domainVersion))
	chainID := uint256Bytes(big.NewInt(chainIDValue))
	contract := addressBytes(common.HexToAddress(verifyingContract))

	buf := make([]byte, 0, 32*4)
	buf = append(buf, nameHash...)
	buf = append(buf, versionHash...)
	buf = append(buf, chainID[:]...)
	buf = append(buf, contract[:]...)

	var out [32]byte
	copy(out[:], crypto.Keccak256(append(append([]byte{}, domainTypeHash...), buf...)))
	return out
}

// DomainSeparator returns the precomputed domain separator for the given
// neg-risk flag.
func DomainSeparator(negRisk bool) [32]byte {
	if negRisk {
		return negRiskDomainSeparator
	}
	return standardDomainSeparator
}

// ExchangeAddress returns the verifying contract address matching negRisk.
func ExchangeAddress(negRisk bool) common.Address {
	if negRisk {
		return common.HexToAddress(NegRiskExchangeAddress)
	}
	return common.HexToAddress(StandardExchangeAddress)
}
