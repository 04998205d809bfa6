package core

import (
	"github.com/shopspring/decimal"
)

// Fixed-point helpers over integer-valued decimals. Internal math runs at
// ray precision (1e27), external-facing amounts at wad precision (1e6).
// Multiplication and division round to nearest: add half a unit, truncate.

func RayMul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Add(HALF_RAY).Div(RAY).Floor()
}

func RayDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Mul(RAY).Add(b.Div(TWO)).Div(b).Floor(), nil
}

func WadMul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Add(HALF_WAD).Div(WAD).Floor()
}

func WadDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Mul(WAD).Add(b.Div(TWO)).Div(b).Floor(), nil
}

// RayPow raises a ray-scaled base to an integer exponent by repeated
// squaring, rounding at every step.
func RayPow(base decimal.Decimal, exponent uint64) decimal.Decimal {
	result := RAY
	for exponent > 0 {
		if exponent&1 == 1 {
			result = RayMul(result, base)
		}
		base = RayMul(base, base)
		exponent >>= 1
	}
	return result
}

// ToRay converts a plain fractional rate (e.g. 0.05) to ray scale.
func ToRay(fraction decimal.Decimal) decimal.Decimal {
	return fraction.Mul(RAY).Floor()
}

// AnnualRateToPerSecondRate converts a ray-scaled annual rate into the
// ray-scaled per-second growth factor used by continuous compounding. A
// zero rate yields the identity factor.
func AnnualRateToPerSecondRate(annualRate decimal.Decimal) decimal.Decimal {
	if annualRate.IsZero() {
		return RAY
	}
	return RAY.Add(annualRate.Div(SECONDS_PER_YEAR_DEC).Floor())
}

// Accrue compounds a principal at a per-second ray growth factor over the
// elapsed seconds. The result carries the principal's own units.
func Accrue(principal, perSecondRate decimal.Decimal, elapsedSeconds int64) decimal.Decimal {
	if elapsedSeconds <= 0 || principal.IsZero() {
		return principal
	}
	return RayMul(principal, RayPow(perSecondRate, uint64(elapsedSeconds)))
}

// InterestPortion is the interest component of an accrual.
func InterestPortion(principal, perSecondRate decimal.Decimal, elapsedSeconds int64) decimal.Decimal {
	return Accrue(principal, perSecondRate, elapsedSeconds).Sub(principal)
}

// BreakEvenRate is the ray-scaled rate at which a loan covers the given
// supply-side interest.
func BreakEvenRate(loan, supplyInterest decimal.Decimal) (decimal.Decimal, error) {
	return RayDiv(supplyInterest, loan)
}
