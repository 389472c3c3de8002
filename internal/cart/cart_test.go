package cart

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/catalog"
	"github.com/noah-isme/backend-blinds/internal/coupon"
	"github.com/noah-isme/backend-blinds/internal/pricing"
)

var shade = catalog.Product{ID: "roller-shade", Name: "Roller Shade"}

func TestAddLineItemNeverMerges(t *testing.T) {
	sel := Selection{Options: catalog.Options{FabricCode: "WHITE01"}}
	c, err := AddLineItem(Cart{ID: "c1"}, shade, sel, 120.96, 1)
	require.NoError(t, err)
	c, err = AddLineItem(c, shade, sel, 120.96, 1)
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	require.NotEqual(t, c.Items[0].ID, c.Items[1].ID)
	require.Less(t, c.Items[0].ID, c.Items[1].ID, "line ids are time ordered")
}

func TestAddLineItemRejectsBadQuantity(t *testing.T) {
	_, err := AddLineItem(Cart{}, shade, Selection{}, 10, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddLineItemDoesNotMutateInput(t *testing.T) {
	orig := Cart{ID: "c1"}
	_, err := AddLineItem(orig, shade, Selection{}, 10, 1)
	require.NoError(t, err)
	require.Empty(t, orig.Items)
}

func TestUpdateQuantityBelowOneIsNoop(t *testing.T) {
	c, err := AddLineItem(Cart{}, shade, Selection{}, 50, 2)
	require.NoError(t, err)
	id := c.Items[0].ID

	same := UpdateQuantity(c, id, 0)
	require.Len(t, same.Items, 1)
	require.Equal(t, 2, same.Items[0].Quantity)
	same = UpdateQuantity(c, id, -4)
	require.Equal(t, 2, same.Items[0].Quantity)

	updated := UpdateQuantity(c, id, 5)
	require.Equal(t, 5, updated.Items[0].Quantity)
	require.Equal(t, 2, c.Items[0].Quantity)
	require.Equal(t, 250.0, updated.Items[0].LineTotal())
}

func TestRemoveLineItem(t *testing.T) {
	c, _ := AddLineItem(Cart{}, shade, Selection{}, 10, 1)
	c, _ = AddLineItem(c, shade, Selection{}, 20, 1)
	keep := c.Items[1].ID

	out := RemoveLineItem(c, c.Items[0].ID)
	require.Len(t, out.Items, 1)
	require.Equal(t, keep, out.Items[0].ID)
	require.Len(t, c.Items, 2)

	require.Len(t, RemoveLineItem(out, "missing").Items, 1)
}

func TestCartTotals(t *testing.T) {
	c, _ := AddLineItem(Cart{}, shade, Selection{}, 325, 2)
	c.Coupon = &coupon.Coupon{Code: "WELCOME10", Kind: coupon.KindPercent, Value: 10}
	totals := c.Totals(pricing.DefaultRules())
	require.Equal(t, 650.0, totals.Subtotal)
	require.Equal(t, 506.0, totals.Total)
}

func TestLineTotalRounds(t *testing.T) {
	l := LineItem{UnitPrice: 33.335, Quantity: 3}
	require.Equal(t, 100.01, l.LineTotal())
}
