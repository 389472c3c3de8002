package cart

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/numeric"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

// Selection is what the shopper configured for one line.
type Selection struct {
	Options       catalog.Options           `json:"options"`
	Measurement   pricing.MeasurementInput  `json:"measurement"`
	Specification pricing.LineSpecification `json:"specification"`
}

// LineItem is a single configured blind in the cart.
type LineItem struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Selection   Selection `json:"selection"`
	UnitPrice   float64   `json:"unitPrice"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LineTotal is unitPrice times quantity, rounded to cents.
func (l LineItem) LineTotal() float64 {
	total := numeric.Dec(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity)))
	return numeric.Float(numeric.Round2(total))
}

// Cart holds line items and at most one coupon. Totals are always derived.
type Cart struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	Items     []LineItem     `json:"items"`
	Coupon    *coupon.Coupon `json:"coupon,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// clone copies the item slice so callers can treat carts as values.
func (c Cart) clone() Cart {
	out := c
	out.Items = append([]LineItem(nil), c.Items...)
	if c.Coupon != nil {
		cp := *c.Coupon
		out.Coupon = &cp
	}
	return out
}

// AddLineItem appends a new line with a fresh time-ordered id. Identical
// configurations are not merged; each call adds its own line.
func AddLineItem(c Cart, product catalog.Product, sel Selection, unitPrice float64, quantity int) (Cart, error) {
	if quantity < 1 {
		return c, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	if unitPrice < 0 {
		return c, fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return c, fmt.Errorf("generate line id: %w", err)
	}
	out := c.clone()
	out.Items = append(out.Items, LineItem{
		ID:          id.String(),
		ProductID:   product.ID,
		ProductName: product.Name,
		Selection:   sel,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		CreatedAt:   time.Now().UTC(),
	})
	return out, nil
}

// RemoveLineItem drops the line with id. Unknown ids leave the cart unchanged.
func RemoveLineItem(c Cart, id string) Cart {
	out := c.clone()
	items := out.Items[:0]
	for _, it := range out.Items {
		if it.ID != id {
			items = append(items, it)
		}
	}
	out.Items = items
	return out
}

// UpdateQuantity sets the quantity of a line. Quantities below 1 are ignored
// and the cart is returned unchanged; removal is the only way to zero.
func UpdateQuantity(c Cart, id string, n int) Cart {
	if n < 1 {
		return c
	}
	out := c.clone()
	for i := range out.Items {
		if out.Items[i].ID == id {
			out.Items[i].Quantity = n
		}
	}
	return out
}

// FindLine returns the line with id.
func (c Cart) FindLine(id string) (LineItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return LineItem{}, false
}

// Lines projects the cart onto the totals pipeline input.
func (c Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return lines
}

// Totals recomputes the cart summary from scratch.
func (c Cart) Totals(rules pricing.Rules) pricing.Totals {
	return pricing.ComputeTotals(c.Lines(), c.Coupon, rules)
}
