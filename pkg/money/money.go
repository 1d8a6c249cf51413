package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToCents converts a major-unit amount (dollars) to integer cents,
// rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer cents to a major-unit decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// CentsString formats integer cents as a major-unit string with two
// decimal places, e.g. 5650 -> "56.50".
func CentsString(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// Proportion returns part/whole, or zero when whole is zero.
func Proportion(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole)
}
