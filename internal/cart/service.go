package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/obs"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

// ErrNotFound indicates the requested cart or line could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ProductSource resolves catalog products.
type ProductSource interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

// CouponResolver resolves shopper supplied coupon codes.
type CouponResolver interface {
	Resolve(ctx context.Context, code string) (coupon.Coupon, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Store    Store
	Products ProductSource
	Coupons  CouponResolver
	Pricing  pricing.Config
	Rules    pricing.Rules
	TTL      time.Duration
	Now      func() time.Time
}

// QuoteInput is one blind configuration to price.
type QuoteInput struct {
	ProductID   string                   `json:"productId" validate:"required"`
	Measurement pricing.MeasurementInput `json:"measurement"`
	Options     catalog.Options          `json:"options"`
}

// Quote is a priced configuration that has passed product validation.
type Quote struct {
	Product   catalog.Product `json:"-"`
	Selection Selection       `json:"selection"`
}

// View is a cart together with its derived totals.
type View struct {
	Cart   Cart           `json:"cart"`
	Totals pricing.Totals `json:"totals"`
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// View wraps a cart with freshly computed totals.
func (s *Service) View(c Cart) View {
	return View{Cart: c, Totals: c.Totals(s.Rules)}
}

// Create starts an empty cart, optionally owned by userID.
func (s *Service) Create(ctx context.Context, userID string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	now := s.now().UTC()
	c := Cart{ID: uuid.NewString(), UserID: strings.TrimSpace(userID), Items: []LineItem{}, CreatedAt: now, UpdatedAt: now}
	if err := s.Store.Save(ctx, c, s.ttl()); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get loads a cart.
func (s *Service) Get(ctx context.Context, cartID string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	cartID = strings.TrimSpace(cartID)
	if _, err := uuid.Parse(cartID); err != nil {
		return Cart{}, fmt.Errorf("%w: invalid cart id", ErrInvalidInput)
	}
	return s.Store.Get(ctx, cartID)
}

// Quote validates a configuration against its product and prices it.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	if s == nil || s.Products == nil {
		return Quote{}, errors.New("cart: product source not configured")
	}
	product, err := s.Products.Get(ctx, strings.TrimSpace(in.ProductID))
	if err != nil {
		return Quote{}, err
	}
	if err := pricing.ValidateBounds(in.Measurement, product.Bounds); err != nil {
		return Quote{}, err
	}
	if err := product.CheckFabric(in.Options.FabricCode); err != nil {
		return Quote{}, err
	}
	surcharge, err := product.Surcharge(in.Options)
	if err != nil {
		return Quote{}, err
	}
	spec, err := pricing.ComputeLineSpecification(in.Measurement, in.Options.FabricCode, surcharge, s.Pricing)
	if err != nil {
		return Quote{}, err
	}
	spec.Name = strings.TrimSpace(in.Options.Name)
	spec.Location = strings.TrimSpace(in.Options.Location)
	return Quote{
		Product:   product,
		Selection: Selection{Options: in.Options, Measurement: in.Measurement, Specification: spec},
	}, nil
}

// AddItem prices the configuration and appends it as a new line.
func (s *Service) AddItem(ctx context.Context, cartID string, in QuoteInput, quantity int) (Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	q, err := s.Quote(ctx, in)
	if err != nil {
		return Cart{}, err
	}
	next, err := AddLineItem(c, q.Product, q.Selection, q.Selection.Specification.TotalPrice, quantity)
	if err != nil {
		return Cart{}, err
	}
	if err := s.save(ctx, &next); err != nil {
		return Cart{}, err
	}
	return next, nil
}

// UpdateQuantity changes a line's quantity. Values below 1 leave the cart
// as it was.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) (Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if _, ok := c.FindLine(itemID); !ok {
		return Cart{}, fmt.Errorf("%w: line %s", ErrNotFound, itemID)
	}
	if quantity < 1 {
		return c, nil
	}
	next := UpdateQuantity(c, itemID, quantity)
	if err := s.save(ctx, &next); err != nil {
		return Cart{}, err
	}
	return next, nil
}

// RemoveItem drops a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	if _, ok := c.FindLine(itemID); !ok {
		return Cart{}, fmt.Errorf("%w: line %s", ErrNotFound, itemID)
	}
	next := RemoveLineItem(c, itemID)
	if err := s.save(ctx, &next); err != nil {
		return Cart{}, err
	}
	return next, nil
}

// ApplyCoupon resolves code and, on success, replaces any coupon already on
// the cart. Unknown or expired codes are reported through the result and
// leave the cart untouched; only infrastructure failures return an error.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, code string) (Cart, coupon.ApplyResult, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, coupon.ApplyResult{}, err
	}
	if s.Coupons == nil {
		return Cart{}, coupon.ApplyResult{}, errors.New("cart: coupon resolver not configured")
	}
	found, err := s.Coupons.Resolve(ctx, code)
	if err != nil {
		if !isCouponRejection(err) {
			return Cart{}, coupon.ApplyResult{}, err
		}
		countCoupon("rejected")
		return c, coupon.Result(coupon.Coupon{}, err), nil
	}
	next := c.clone()
	next.Coupon = &found
	if err := s.save(ctx, &next); err != nil {
		return Cart{}, coupon.ApplyResult{}, err
	}
	countCoupon("applied")
	return next, coupon.Result(found, nil), nil
}

// RemoveCoupon clears the cart's coupon.
func (s *Service) RemoveCoupon(ctx context.Context, cartID string) (Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	next := c.clone()
	next.Coupon = nil
	if err := s.save(ctx, &next); err != nil {
		return Cart{}, err
	}
	return next, nil
}

// Delete removes the cart, typically after checkout.
func (s *Service) Delete(ctx context.Context, cartID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.Delete(ctx, cartID)
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = s.now().UTC()
	return s.Store.Save(ctx, *c, s.ttl())
}

func isCouponRejection(err error) bool {
	return errors.Is(err, coupon.ErrUnknownCode) ||
		errors.Is(err, coupon.ErrCouponExpired) ||
		errors.Is(err, coupon.ErrInvalidCoupon)
}

func countCoupon(result string) {
	if obs.CouponApplyTotal != nil {
		obs.CouponApplyTotal.WithLabelValues(result).Inc()
	}
}
