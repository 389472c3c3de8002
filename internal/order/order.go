package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-blinds/internal/cart"
	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/events"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrInvalidStatus     = errors.New("order: unknown status")
	ErrInvalidTransition = errors.New("order: status transition not allowed")
	ErrEmptyCart         = errors.New("order: cart has no items")
)

// Status is the production lifecycle of an order.
type Status string

const (
	StatusPending      Status = "pending"
	StatusInProduction Status = "in_production"
	StatusShipped      Status = "shipped"
	StatusDelivered    Status = "delivered"
	StatusCancelled    Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusInProduction, StatusCancelled},
	StatusInProduction: {StatusShipped, StatusCancelled},
	StatusShipped:      {StatusDelivered},
}

// ParseStatus accepts the lowercase wire form.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusInProduction, StatusShipped, StatusDelivered, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// CanTransition reports whether an order may move from one status to another.
// Delivered and cancelled are terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Line is an order line frozen at checkout.
type Line struct {
	ID            string                    `json:"id"`
	ProductID     string                    `json:"productId"`
	ProductName   string                    `json:"productName"`
	Options       catalog.Options           `json:"options"`
	Specification pricing.LineSpecification `json:"specification"`
	UnitPrice     float64                   `json:"unitPrice"`
	Quantity      int                       `json:"quantity"`
	LineTotal     float64                   `json:"lineTotal"`
}

// Customer is the shipping contact captured at checkout.
type Customer struct {
	Name       string `json:"name" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Phone      string `json:"phone,omitempty" validate:"max=40"`
	Address    string `json:"address" validate:"required,max=300"`
	City       string `json:"city" validate:"required,max=80"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
}

// Tracking carries shipping details set when an order ships.
type Tracking struct {
	Number  string `json:"trackingNumber,omitempty"`
	Carrier string `json:"carrier,omitempty"`
}

type Order struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId,omitempty"`
	CartID     string                 `json:"cartId"`
	Status     Status                 `json:"status"`
	Lines      []Line                 `json:"lines"`
	CouponCode string                 `json:"couponCode,omitempty"`
	Totals     pricing.CheckoutTotals `json:"totals"`
	Customer   Customer               `json:"customer"`
	Tracking   Tracking               `json:"tracking"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// FromCart snapshots a cart into a pending order.
func FromCart(id string, c cart.Cart, totals pricing.CheckoutTotals, customer Customer, now time.Time) (Order, error) {
	if len(c.Items) == 0 {
		return Order{}, ErrEmptyCart
	}
	lines := make([]Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, Line{
			ID:            it.ID,
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Options:       it.Selection.Options,
			Specification: it.Selection.Specification,
			UnitPrice:     it.UnitPrice,
			Quantity:      it.Quantity,
			LineTotal:     it.LineTotal(),
		})
	}
	o := Order{
		ID:        id,
		UserID:    c.UserID,
		CartID:    c.ID,
		Status:    StatusPending,
		Lines:     lines,
		Totals:    totals,
		Customer:  customer,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.Coupon != nil {
		o.CouponCode = c.Coupon.Code
	}
	return o, nil
}

// PlacedEvent is the order.created payload.
type PlacedEvent struct {
	OrderID    string  `json:"orderId"`
	UserID     string  `json:"userId,omitempty"`
	FinalTotal float64 `json:"finalTotal"`
	PointsUsed float64 `json:"pointsUsed"`
}

// CancelledEvent is the order.cancelled payload.
type CancelledEvent struct {
	OrderID    string  `json:"orderId"`
	UserID     string  `json:"userId,omitempty"`
	PointsUsed float64 `json:"pointsUsed"`
}

// NewPlacedEvent builds the outbox record written alongside a new order.
func NewPlacedEvent(o Order) (events.Event, error) {
	return events.NewEvent(events.TopicOrderCreated, o.ID, PlacedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		FinalTotal: o.Totals.FinalTotal,
		PointsUsed: o.Totals.PointsUsed,
	})
}

// NewCancelledEvent builds the outbox record for a cancellation.
func NewCancelledEvent(o Order) (events.Event, error) {
	return events.NewEvent(events.TopicOrderCancelled, o.ID, CancelledEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		PointsUsed: o.Totals.PointsUsed,
	})
}
