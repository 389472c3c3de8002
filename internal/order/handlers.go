package order

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-blinds/internal/common"
)

// Handler serves customer-facing order reads.
type Handler struct {
	Store Store
}

// Get returns an order by id. Signed-in callers only see their own orders;
// guest orders are reachable by their unguessable id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if o.UserID != "" {
		userID, _ := common.UserID(r.Context())
		if userID != o.UserID {
			writeError(w, ErrNotFound)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// List returns the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 10000)
	orders, err := h.Store.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// AdminHandler provides order management endpoints.
type AdminHandler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status         string `json:"status" validate:"required"`
	TrackingNumber string `json:"trackingNumber" validate:"max=64"`
	Carrier        string `json:"carrier" validate:"max=64"`
}

// PatchStatus updates the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	if target == StatusShipped && strings.TrimSpace(req.TrackingNumber) == "" {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "tracking number required when shipping", nil)
		return
	}
	o, err := h.Svc.Transition(r.Context(), chi.URLParam(r, "id"), target, Tracking{
		Number:  strings.TrimSpace(req.TrackingNumber),
		Carrier: strings.TrimSpace(req.Carrier),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Get returns any order regardless of owner.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidStatus):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order request failed", nil)
	}
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return def
	}
	return v
}
