// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reward

import (
	"github.com/holiman/uint256"

	safemath "github.com/luxfi/stakevault/utils/math"
)

const (
	// RateDenominator is the number of rate units in 100% per year. A config
	// rate of RateDenominator doubles a position roughly every 8.4 months
	// (continuous compounding at 100% APR).
	RateDenominator = 1_000_000

	// SecondsPerYear is the accrual year: 365 days, no leap handling.
	SecondsPerYear = 365 * 24 * 60 * 60

	// maxExpTerms bounds the Taylor expansion of expWad. With the exponent
	// capped below, the terms always reach zero well before this.
	maxExpTerms = 200
)

var (
	// wad is the fixed-point scale used for the growth factor.
	wad = uint256.NewInt(1e18)

	// maxExpWad caps the growth exponent at 45 (wad-scaled). e^45 scaled by
	// wad exceeds what any nonzero uint64 value can be multiplied by without
	// overflowing, so larger exponents always overflow anyway.
	maxExpWad = uint256.NewInt(0).Mul(uint256.NewInt(45), wad)

	rateScale = uint256.NewInt(RateDenominator * SecondsPerYear)
)

// Calculator computes position values under continuous compounding. It is
// stateless; the rate and timing inputs come from the position's config.
type Calculator struct{}

func NewCalculator() Calculator {
	return Calculator{}
}

// Elapsed returns the accruable seconds between lastAccrued and now, clamped
// to [0, duration]. A duration of 0 means accrual is never clamped.
func (Calculator) Elapsed(lastAccrued, duration, now uint64) uint64 {
	if now <= lastAccrued {
		return 0
	}
	elapsed := now - lastAccrued
	if duration != 0 && elapsed > duration {
		return duration
	}
	return elapsed
}

// Value returns value compounded continuously at rate for elapsed seconds:
//
//	value * e^(rate/RateDenominator * elapsed/SecondsPerYear)
//
// computed in wad (1e18) fixed point, rounding toward zero at every step so
// the result is deterministic. The result equals value exactly when elapsed
// or rate is zero. If the compounded value exceeds the uint64 range the
// ledger would be corrupted by wrapping, so this returns
// [safemath.ErrOverflow] instead.
func (c Calculator) Value(value, rate, elapsed uint64) (uint64, error) {
	if value == 0 || rate == 0 || elapsed == 0 {
		return value, nil
	}

	// exponent = rate * elapsed * wad / (RateDenominator * SecondsPerYear)
	exponent := new(uint256.Int).Mul(
		new(uint256.Int).SetUint64(rate),
		new(uint256.Int).SetUint64(elapsed),
	)
	exponent.Mul(exponent, wad)
	exponent.Div(exponent, rateScale)

	growth, err := expWad(exponent)
	if err != nil {
		return 0, err
	}

	newValue := new(uint256.Int).Mul(new(uint256.Int).SetUint64(value), growth)
	newValue.Div(newValue, wad)
	if !newValue.IsUint64() {
		return 0, safemath.ErrOverflow
	}
	return newValue.Uint64(), nil
}

// expWad returns e^x in wad fixed point, truncated. x is wad-scaled and must
// be non-negative. The Taylor series sum x^k / k! is evaluated term by term
// with floor division, which keeps the result monotone in x.
func expWad(x *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return new(uint256.Int).Set(wad), nil
	}
	if x.Cmp(maxExpWad) > 0 {
		return nil, safemath.ErrOverflow
	}

	sum := new(uint256.Int).Set(wad)
	term := new(uint256.Int).Set(wad)
	divisor := new(uint256.Int)
	for k := uint64(1); k <= maxExpTerms; k++ {
		term.Mul(term, x)
		divisor.Mul(wad, new(uint256.Int).SetUint64(k))
		term.Div(term, divisor)
		if term.IsZero() {
			break
		}
		sum.Add(sum, term)
	}
	return sum, nil
}
