package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/backend-blinds/internal/cart"
	"github.com/noah-isme/backend-blinds/internal/common"
	"github.com/noah-isme/backend-blinds/internal/loyalty"
	"github.com/noah-isme/backend-blinds/internal/order"
)

type Handler struct {
	Svc *Service
}

// Checkout places an order for the cart. Guests may check out; points are
// only redeemed for signed-in users.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var payload Input
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteAppError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	o, err := h.Svc.PlaceOrder(r.Context(), userID, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Preview returns checkout totals for the cart without placing an order.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var payload PreviewInput
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteAppError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	totals, err := h.Svc.Preview(r.Context(), userID, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": totals})
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, ErrCartNotOwned):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, cart.ErrInvalidInput), errors.Is(err, ErrInvalidPoints):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, order.ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart has no items", nil)
	case errors.Is(err, loyalty.ErrInsufficientBalance):
		common.JSONError(w, http.StatusConflict, "INSUFFICIENT_POINTS", "points balance changed, please retry", nil)
	case errors.Is(err, ErrCouponWithdrawn):
		common.JSONError(w, http.StatusConflict, "COUPON_WITHDRAWN", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed", nil)
	}
}
