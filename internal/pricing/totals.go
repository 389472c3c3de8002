package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/loyalty"
	"github.com/noah-isme/backend-blinds/internal/numeric"
)

// Line is the part of a cart line the totals pipeline needs.
type Line struct {
	UnitPrice float64
	Quantity  int
}

// VolumeTier grants Rate (a fraction) once the subtotal reaches Threshold.
type VolumeTier struct {
	Threshold float64
	Rate      float64
}

// Rules holds the cart level discount and tax settings.
type Rules struct {
	TaxRateBps int
	// Tiers nil means the default brackets; an empty slice disables volume discounts.
	Tiers []VolumeTier
}

// DefaultRules returns 8.25% tax and the 10/20/25% volume brackets.
func DefaultRules() Rules {
	return Rules{
		TaxRateBps: 825,
		Tiers: []VolumeTier{
			{Threshold: 1000, Rate: 0.25},
			{Threshold: 600, Rate: 0.20},
			{Threshold: 300, Rate: 0.10},
		},
	}
}

func (r Rules) normalized() Rules {
	def := DefaultRules()
	if r.TaxRateBps < 0 {
		r.TaxRateBps = def.TaxRateBps
	}
	if r.Tiers == nil {
		r.Tiers = def.Tiers
	}
	tiers := append([]VolumeTier(nil), r.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Threshold > tiers[j].Threshold })
	r.Tiers = tiers
	return r
}

// Totals is the cart summary. It is derived on every read and never stored
// as the source of truth.
type Totals struct {
	Subtotal           float64 `json:"subtotal"`
	VolumeDiscount     float64 `json:"volumeDiscount"`
	VolumeDiscountRate float64 `json:"volumeDiscountRate"`
	CouponCode         string  `json:"couponCode,omitempty"`
	CouponDiscount     float64 `json:"couponDiscount"`
	DiscountedSubtotal float64 `json:"discountedSubtotal"`
	Tax                float64 `json:"tax"`
	Total              float64 `json:"total"`
}

// CheckoutTotals layers the points redemption on top of Totals.
type CheckoutTotals struct {
	Totals
	PointsUsed     float64 `json:"pointsUsed"`
	PointsDiscount float64 `json:"pointsDiscount"`
	PointsEarned   float64 `json:"pointsEarned"`
	FinalTotal     float64 `json:"finalTotal"`
}

// ComputeTotals runs subtotal, volume discount, coupon and tax in that fixed
// order. c may be nil.
func ComputeTotals(lines []Line, c *coupon.Coupon, rules Rules) Totals {
	rules = rules.normalized()

	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity < 1 || !finite(l.UnitPrice) {
			continue
		}
		subtotal = subtotal.Add(numeric.Dec(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	subtotal = numeric.Round2(subtotal)

	rate := volumeRate(subtotal, rules.Tiers)
	volume := numeric.FloorWhole(subtotal.Mul(rate))

	couponDiscount := decimal.Zero
	out := Totals{}
	if c != nil {
		couponDiscount = c.Discount(subtotal.Sub(volume))
		out.CouponCode = c.Code
	}

	discounted := numeric.Max(decimal.Zero, subtotal.Sub(volume).Sub(couponDiscount))
	tax := numeric.FloorWhole(discounted.Mul(numeric.BasisPoints(rules.TaxRateBps)))
	total := discounted.Add(tax)

	out.Subtotal = numeric.Float(subtotal)
	out.VolumeDiscount = numeric.Float(volume)
	out.VolumeDiscountRate = numeric.Float(rate)
	out.CouponDiscount = numeric.Float(couponDiscount)
	out.DiscountedSubtotal = numeric.Float(discounted)
	out.Tax = numeric.Float(tax)
	out.Total = numeric.Float(total)
	return out
}

// ApplyPoints subtracts the value of pointsUsed after tax. The taxable base
// is not touched. Points earned are computed on the final total.
func ApplyPoints(t Totals, pointsUsed float64, rates loyalty.Rates) CheckoutTotals {
	points := decimal.Zero
	if finite(pointsUsed) && pointsUsed > 0 {
		points = numeric.FloorTenth(numeric.Dec(pointsUsed))
	}
	discount := rates.Discount(points)
	final := numeric.Max(decimal.Zero, numeric.Dec(t.Total).Sub(discount))
	return CheckoutTotals{
		Totals:         t,
		PointsUsed:     numeric.Float(points),
		PointsDiscount: numeric.Float(discount),
		PointsEarned:   numeric.Float(rates.Earned(final)),
		FinalTotal:     numeric.Float(numeric.Round2(final)),
	}
}

func volumeRate(subtotal decimal.Decimal, tiers []VolumeTier) decimal.Decimal {
	for _, tier := range tiers {
		if subtotal.GreaterThanOrEqual(numeric.Dec(tier.Threshold)) {
			return numeric.Dec(tier.Rate)
		}
	}
	return decimal.Zero
}
