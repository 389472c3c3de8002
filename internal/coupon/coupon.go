// Package coupon resolves coupon codes and computes their discount on the
// post-volume-discount amount.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/numeric"
)

var (
	// ErrUnknownCode is returned when no coupon matches the supplied code.
	ErrUnknownCode = errors.New("coupon code not found")
	// ErrCouponExpired is returned when the coupon exists but is outside its active window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrInvalidCoupon is returned for malformed coupon definitions.
	ErrInvalidCoupon = errors.New("invalid coupon definition")
)

// Kind is the discount type of a coupon.
type Kind string

const (
	KindPercent Kind = "percent"
	KindAmount  Kind = "amount"
)

// Coupon is a single registry entry.
type Coupon struct {
	Code      string     `json:"code"`
	Kind      Kind       `json:"type"`
	Value     float64    `json:"value"`
	ValidFrom *time.Time `json:"validFrom,omitempty"`
	ValidTo   *time.Time `json:"validTo,omitempty"`
}

// Validate checks the definition itself, not its applicability.
func (c Coupon) Validate() error {
	if NormalizeCode(c.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	}
	if c.Kind != KindPercent && c.Kind != KindAmount {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidCoupon, c.Kind)
	}
	if c.Value < 0 {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidCoupon)
	}
	if c.Kind == KindPercent && c.Value > 100 {
		return fmt.Errorf("%w: percent value above 100", ErrInvalidCoupon)
	}
	return nil
}

// ActiveAt reports whether now falls inside the optional validity window.
func (c Coupon) ActiveAt(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return false
	}
	return true
}

// Discount applies the coupon to the amount left after the volume discount.
// Percent coupons are floored to whole dollars; amount coupons are flat and
// are not capped here (the totals pipeline clamps the discounted subtotal).
func (c Coupon) Discount(base decimal.Decimal) decimal.Decimal {
	if base.IsNegative() {
		base = decimal.Zero
	}
	value := numeric.Dec(c.Value)
	switch c.Kind {
	case KindPercent:
		return numeric.FloorWhole(numeric.Percent(base, value))
	case KindAmount:
		return value
	default:
		return decimal.Zero
	}
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository looks coupons up by normalised code. Implementations return
// ErrUnknownCode when nothing matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
}

// ApplyResult is reported to the shopper after an apply attempt. A failed
// attempt leaves whatever coupon the cart already had in place.
type ApplyResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Coupon  *Coupon `json:"coupon,omitempty"`
}
