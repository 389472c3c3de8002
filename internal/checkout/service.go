package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/cart"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/events"
	"github.com/noah-isme/backend-blinds/internal/loyalty"
	"github.com/noah-isme/backend-blinds/internal/obs"
	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

var (
	// ErrCartNotOwned is returned when a signed-in user checks out someone
	// else's cart.
	ErrCartNotOwned = errors.New("checkout: cart belongs to another user")
	// ErrCouponWithdrawn is returned when the cart's coupon stopped being
	// valid between apply and checkout.
	ErrCouponWithdrawn = errors.New("checkout: coupon no longer valid")
	ErrInvalidPoints   = errors.New("checkout: invalid points amount")
)

// Carts is the cart access checkout needs.
type Carts interface {
	Get(ctx context.Context, cartID string) (cart.Cart, error)
	Delete(ctx context.Context, cartID string) error
}

// Ledger is the loyalty access checkout needs.
type Ledger interface {
	MaxRedeemable(ctx context.Context, userID string, total float64) (float64, error)
	Redeem(ctx context.Context, userID string, points float64, orderID string) (float64, error)
	Refund(ctx context.Context, userID string, points float64, orderID string) error
}

// Service places orders. Placement is a saga: redeem points, persist the
// order with its order.created outbox event, dispatch. A failure to persist
// refunds the redemption; anything after the commit is best effort.
type Service struct {
	Carts   Carts
	Coupons cart.CouponResolver
	Orders  order.Store
	Loyalty Ledger
	Events  order.Dispatcher
	Rules   pricing.Rules
	Rates   loyalty.Rates
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() (uuid.UUID, error)
}

// Input is the checkout request body.
type Input struct {
	CartID      string         `json:"cartId" validate:"required,uuid"`
	PointsToUse float64        `json:"pointsToUse" validate:"gte=0"`
	Customer    order.Customer `json:"customer"`
}

// PreviewInput asks for checkout totals without placing an order.
type PreviewInput struct {
	CartID      string  `json:"cartId" validate:"required,uuid"`
	PointsToUse float64 `json:"pointsToUse" validate:"gte=0"`
}

// Preview prices the cart as checkout would, clamping points to what the
// caller can redeem. Nothing is written.
func (s *Service) Preview(ctx context.Context, userID string, in PreviewInput) (pricing.CheckoutTotals, error) {
	c, err := s.loadCart(ctx, userID, in.CartID)
	if err != nil {
		return pricing.CheckoutTotals{}, err
	}
	if err := s.revalidateCoupon(ctx, &c); err != nil {
		return pricing.CheckoutTotals{}, err
	}
	totals := c.Totals(s.Rules)
	points, err := s.clampPoints(ctx, userID, in.PointsToUse, totals.Total)
	if err != nil {
		return pricing.CheckoutTotals{}, err
	}
	return pricing.ApplyPoints(totals, points, s.Rates), nil
}

// PlaceOrder turns the cart into an order.
func (s *Service) PlaceOrder(ctx context.Context, userID string, in Input) (order.Order, error) {
	if s == nil || s.Carts == nil || s.Orders == nil {
		return order.Order{}, errors.New("checkout service not configured")
	}
	userID = strings.TrimSpace(userID)
	c, err := s.loadCart(ctx, userID, in.CartID)
	if err != nil {
		return order.Order{}, err
	}
	if len(c.Items) == 0 {
		return order.Order{}, order.ErrEmptyCart
	}
	if err := s.revalidateCoupon(ctx, &c); err != nil {
		return order.Order{}, err
	}
	if userID != "" {
		c.UserID = userID
	}

	totals := c.Totals(s.Rules)
	points, err := s.clampPoints(ctx, userID, in.PointsToUse, totals.Total)
	if err != nil {
		return order.Order{}, err
	}
	checkoutTotals := pricing.ApplyPoints(totals, points, s.Rates)

	id, err := s.newID()
	if err != nil {
		return order.Order{}, err
	}
	o, err := order.FromCart(id.String(), c, checkoutTotals, in.Customer, s.now())
	if err != nil {
		return order.Order{}, err
	}
	log := s.Logger.With().Str("order_id", o.ID).Str("cart_id", c.ID).Logger()

	redeemed := false
	if userID != "" && checkoutTotals.PointsUsed > 0 {
		if s.Loyalty == nil {
			return order.Order{}, errors.New("checkout: loyalty ledger not configured")
		}
		if _, err := s.Loyalty.Redeem(ctx, userID, checkoutTotals.PointsUsed, o.ID); err != nil {
			countOrder("rejected")
			return order.Order{}, fmt.Errorf("redeem points: %w", err)
		}
		redeemed = true
	}

	ev, err := order.NewPlacedEvent(o)
	if err == nil {
		err = s.Orders.Create(ctx, o, ev)
	}
	if err != nil {
		if redeemed {
			// the order is not durable, so give the points back
			refundCtx := context.WithoutCancel(ctx)
			if rerr := s.Loyalty.Refund(refundCtx, userID, checkoutTotals.PointsUsed, o.ID); rerr != nil {
				log.Error().Err(rerr).Float64("points", checkoutTotals.PointsUsed).Msg("refund after failed order create")
			}
		}
		countOrder("failed")
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}
	countOrder("placed")
	log.Info().Float64("final_total", o.Totals.FinalTotal).Float64("points_used", o.Totals.PointsUsed).Msg("order placed")

	if s.Events != nil {
		if err := s.Events.Dispatch(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("dispatch deferred to relay")
		}
	}
	if err := s.Carts.Delete(ctx, c.ID); err != nil {
		log.Warn().Err(err).Msg("delete checked-out cart")
	}
	return o, nil
}

func (s *Service) loadCart(ctx context.Context, userID, cartID string) (cart.Cart, error) {
	c, err := s.Carts.Get(ctx, cartID)
	if err != nil {
		return cart.Cart{}, err
	}
	if c.UserID != "" && c.UserID != strings.TrimSpace(userID) {
		return cart.Cart{}, ErrCartNotOwned
	}
	return c, nil
}

// revalidateCoupon re-resolves the applied coupon so an expired or withdrawn
// code is not honoured at checkout.
func (s *Service) revalidateCoupon(ctx context.Context, c *cart.Cart) error {
	if c.Coupon == nil || s.Coupons == nil {
		return nil
	}
	current, err := s.Coupons.Resolve(ctx, c.Coupon.Code)
	if err != nil {
		if errors.Is(err, coupon.ErrUnknownCode) || errors.Is(err, coupon.ErrCouponExpired) || errors.Is(err, coupon.ErrInvalidCoupon) {
			return fmt.Errorf("%w: %s", ErrCouponWithdrawn, c.Coupon.Code)
		}
		return err
	}
	c.Coupon = &current
	return nil
}

// clampPoints bounds the request by balance and by what would zero the order.
func (s *Service) clampPoints(ctx context.Context, userID string, requested, total float64) (float64, error) {
	if math.IsNaN(requested) || math.IsInf(requested, 0) || requested < 0 {
		return 0, ErrInvalidPoints
	}
	if userID == "" || requested == 0 || s.Loyalty == nil {
		return 0, nil
	}
	limit, err := s.Loyalty.MaxRedeemable(ctx, userID, total)
	if err != nil {
		return 0, err
	}
	return math.Min(requested, limit), nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() (uuid.UUID, error) {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewV7()
}

func countOrder(result string) {
	if obs.OrdersPlacedTotal != nil {
		obs.OrdersPlacedTotal.WithLabelValues(result).Inc()
	}
}

var _ order.Dispatcher = (*events.Bus)(nil)
