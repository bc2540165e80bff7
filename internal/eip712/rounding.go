package eip712

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"polymarket-mm/pkg/types"
)

const sizeDecimals = 2 // size rounding precision is fixed across every tick size

// roundConfig is the (price, size, amount) decimal budget for one tick size,
// matching the closed table in spec.md §4.3.
type roundConfig struct {
	price  int32
	size   int32
	amount int32
}

func configFor(tick types.TickSize) roundConfig {
	return roundConfig{
		price:  int32(tick.Decimals()),
		size:   sizeDecimals,
		amount: int32(tick.AmountDecimals()),
	}
}

// decimalPlaces counts the digits after the decimal point in d's minimal
// string representation, matching the reference implementation's
// string-based decimal_places check exactly (it is sensitive to trailing
// zeros the same way value.to_string() is).
func decimalPlaces(d decimal.Decimal) int32 {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}

// roundUp rounds d up (toward +infinity) to the given number of decimal places.
func roundUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundCeil(places)
}

// roundDown rounds d down (toward zero, d is always non-negative here) to
// the given number of decimal places.
func roundDown(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundFloor(places)
}

// roundHalfEven rounds d to the given number of decimal places using
// banker's rounding, per spec.md §4.3's stated price-rounding rule.
func roundHalfEven(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundBank(places)
}

// toTokenDecimals scales a raw decimal amount to 6-decimal USDC integer
// units, rounding to the nearest integer (half away from zero) if the scaled
// value still carries a fraction.
func toTokenDecimals(raw decimal.Decimal) *big.Int {
	scaled := raw.Shift(6)
	return scaled.Round(0).BigInt()
}

// Amounts computes (makerAmount, takerAmount) in 6-decimal token units for a
// BUY or SELL order at the given human price/size on the given tick size,
// applying the exact overflow cascade from spec.md §4.3: round the price
// half-to-even, round size down, then if the computed cross-amount carries
// more decimal digits than the tick's amount budget, canonicalize it by
// rounding up to amount+4 places and, if still too long, rounding down to
// amount places.
func Amounts(side types.Side, price, size float64, tick types.TickSize) (makerAmount, takerAmount *big.Int, err error) {
	cfg := configFor(tick)

	rawPrice := roundHalfEven(decimal.NewFromFloat(price), cfg.price)

	switch side {
	case types.BUY:
		rawTaker := roundDown(decimal.NewFromFloat(size), cfg.size)
		rawMaker := rawTaker.Mul(rawPrice)

		if decimalPlaces(rawMaker) > cfg.amount {
			rawMaker = roundUp(rawMaker, cfg.amount+4)
			if decimalPlaces(rawMaker) > cfg.amount {
				rawMaker = roundDown(rawMaker, cfg.amount)
			}
		}

		return toTokenDecimals(rawMaker), toTokenDecimals(rawTaker), nil

	case types.SELL:
		rawMaker := roundDown(decimal.NewFromFloat(size), cfg.size)
		rawTaker := rawMaker.Mul(rawPrice)

		if decimalPlaces(rawTaker) > cfg.amount {
			rawTaker = roundUp(rawTaker, cfg.amount+4)
			if decimalPlaces(rawTaker) > cfg.amount {
				rawTaker = roundDown(rawTaker, cfg.amount)
			}
		}

		return toTokenDecimals(rawMaker), toTokenDecimals(rawTaker), nil

	default:
		return nil, nil, fmt.Errorf("unknown side %q", side)
	}
}
