package valueobject

import "github.com/shopspring/decimal"

// DiscountSignificantDigits is the precision of discounted amounts
const DiscountSignificantDigits int32 = 3

var hundred = decimal.NewFromInt(100)

// DeductPercent returns amount - amount*percent/100 rounded half away from
// zero to DiscountSignificantDigits significant digits.
func DeductPercent(amount, percent decimal.Decimal) decimal.Decimal {
	discount := amount.Mul(percent).Div(hundred)
	return RoundSignificant(amount.Sub(discount), DiscountSignificantDigits)
}

// RoundSignificant rounds d half away from zero to the given number of
// significant digits. With three digits 1234.5 becomes 1230 and 0.012345
// becomes 0.0123.
func RoundSignificant(d decimal.Decimal, digits int32) decimal.Decimal {
	if d.IsZero() || digits <= 0 {
		return d
	}
	abs := d.Abs()
	n := int32(len(abs.Coefficient().String()))
	// most significant digit sits at 10^(n-1+exp)
	return d.Round(digits - (n + abs.Exponent()))
}
