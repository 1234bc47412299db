package utils

import (
	"github.com/shopspring/decimal"
)

const (
	Epsilon = 1.0e-6
)

var (
	EpsilonDecimal = decimal.NewFromFloat(Epsilon)
)

// EqualWithTolerance compares two decimal.Decimal values and returns true if
// they are equal within the tolerance defined by the EpsilonDecimal variable.
func EqualWithTolerance(d1 decimal.Decimal, d2 decimal.Decimal) bool {
	return d1.Sub(d2).Abs().LessThanOrEqual(EpsilonDecimal)
}

// TryRoundToDecimal returns roundTo when the given decimal.Decimal is
// EqualWithTolerance to it, and the original value otherwise.
func TryRoundToDecimal(d decimal.Decimal, roundTo decimal.Decimal) decimal.Decimal {
	if EqualWithTolerance(d, roundTo) {
		return roundTo
	}

	return d
}
