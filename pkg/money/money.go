// Package money holds the decimal helpers shared by every ledger engine.
// Amounts are dollars with two decimal places; rounding is half away from zero.
package money

import "github.com/shopspring/decimal"

const Places = 2

var (
	Zero = decimal.Zero
	cent = decimal.New(1, -Places)
)

// Round rounds to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Sum adds amounts without intermediate rounding.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ToMinorUnits converts dollars to integer cents for payment providers.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(Places).Round(0).IntPart()
}

// FromMinorUnits converts integer cents to dollars.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}

// WithinCent reports whether a and b differ by at most one cent.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(cent)
}
