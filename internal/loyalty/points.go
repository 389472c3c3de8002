// Package loyalty implements points accrual and redemption on top of an
// append-only per-user ledger.
package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/numeric"
)

// Rates configures accrual and redemption value.
type Rates struct {
	// EarnRate is points credited per dollar of final order total.
	EarnRate float64
	// PointValue is the dollar value of one redeemed point.
	PointValue float64
}

// DefaultRates returns 0.1 point per dollar and $0.50 per point.
func DefaultRates() Rates {
	return Rates{EarnRate: 0.1, PointValue: 0.5}
}

func (r Rates) normalized() Rates {
	def := DefaultRates()
	if r.EarnRate <= 0 {
		r.EarnRate = def.EarnRate
	}
	if r.PointValue <= 0 {
		r.PointValue = def.PointValue
	}
	return r
}

// Earned returns the points credited for a total, truncated to one decimal.
func (r Rates) Earned(total decimal.Decimal) decimal.Decimal {
	r = r.normalized()
	if !total.IsPositive() {
		return decimal.Zero
	}
	return numeric.FloorTenth(total.Mul(numeric.Dec(r.EarnRate)))
}

// Discount returns the dollar value of redeeming points.
func (r Rates) Discount(points decimal.Decimal) decimal.Decimal {
	r = r.normalized()
	if !points.IsPositive() {
		return decimal.Zero
	}
	return numeric.Round2(points.Mul(numeric.Dec(r.PointValue)))
}

// MaxRedeemable bounds a redemption so it can neither exceed the balance nor
// push the order below zero.
func (r Rates) MaxRedeemable(balance, total decimal.Decimal) decimal.Decimal {
	r = r.normalized()
	if !balance.IsPositive() || !total.IsPositive() {
		return decimal.Zero
	}
	byTotal := total.Div(numeric.Dec(r.PointValue))
	return numeric.FloorTenth(numeric.Min(balance, byTotal))
}

// PointsEarned applies the default rates to an order total.
func PointsEarned(total float64) float64 {
	return numeric.Float(DefaultRates().Earned(numeric.Dec(total)))
}

// PointsDiscount applies the default point value.
func PointsDiscount(points float64) float64 {
	return numeric.Float(DefaultRates().Discount(numeric.Dec(points)))
}
