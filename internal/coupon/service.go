package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service resolves shopper supplied codes against a Repository.
type Service struct {
	Repo Repository
	Now  func() time.Time
}

// Resolve returns the active coupon for code. Unknown and expired codes
// surface as ErrUnknownCode and ErrCouponExpired.
func (s *Service) Resolve(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.Repo == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Coupon{}, fmt.Errorf("code is required: %w", ErrUnknownCode)
	}
	c, err := s.Repo.FindByCode(ctx, normalized)
	if err != nil {
		return Coupon{}, err
	}
	if err := c.Validate(); err != nil {
		return Coupon{}, err
	}
	if !c.ActiveAt(s.now()) {
		return Coupon{}, ErrCouponExpired
	}
	c.Code = normalized
	return c, nil
}

// Result converts a Resolve outcome into the shopper facing message.
func Result(c Coupon, err error) ApplyResult {
	switch {
	case err == nil:
		return ApplyResult{Success: true, Message: fmt.Sprintf("Coupon %s applied", c.Code), Coupon: &c}
	case errors.Is(err, ErrCouponExpired):
		return ApplyResult{Success: false, Message: "This coupon has expired"}
	default:
		return ApplyResult{Success: false, Message: "Invalid coupon code"}
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
