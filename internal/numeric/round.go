// Package numeric holds the rounding rules shared by pricing, cart totals,
// loyalty points and fulfillment export. Every monetary or dimensional value
// that leaves the service is rounded through one of these helpers.
package numeric

import "github.com/shopspring/decimal"

var (
	ten     = decimal.NewFromInt(10)
	hundred = decimal.NewFromInt(100)
)

// Dec converts a float input into a decimal using its shortest representation,
// so 91.44 becomes exactly 91.44 rather than its binary approximation.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Float converts a decimal back into the float64 carried on output records.
func Float(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Round4 rounds half away from zero to four places (centimetre conversions).
func Round4(d decimal.Decimal) decimal.Decimal { return d.Round(4) }

// Round12 rounds half away from zero to twelve places (square metres).
func Round12(d decimal.Decimal) decimal.Decimal { return d.Round(12) }

// FloorTenth truncates toward negative infinity at one decimal place.
func FloorTenth(d decimal.Decimal) decimal.Decimal { return d.RoundFloor(1) }

// FloorWhole truncates toward negative infinity to a whole unit.
func FloorWhole(d decimal.Decimal) decimal.Decimal { return d.Floor() }

// Percent returns d*pct/100.
func Percent(d, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(hundred)
}

// Tenths converts a one-decimal quantity (loyalty points) into integer tenths.
// Anything finer than a tenth is truncated.
func Tenths(d decimal.Decimal) int64 {
	return FloorTenth(d).Mul(ten).IntPart()
}

// FromTenths is the inverse of Tenths.
func FromTenths(t int64) decimal.Decimal {
	return decimal.New(t, -1)
}

// BasisPoints turns an integer basis-point rate into a fraction (825 -> 0.0825).
func BasisPoints(bps int) decimal.Decimal {
	return decimal.New(int64(bps), -4)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
