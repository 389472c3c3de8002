package loyalty

import (
	"net/http"

	"github.com/noah-isme/backend-blinds/internal/common"
)

// Handler exposes the shopper's points account.
type Handler struct {
	Svc *Service
}

// Me returns the authenticated user's balance and history.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "loyalty service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in to view points", nil)
		return
	}
	account, err := h.Svc.Account(r.Context(), userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load points", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": account})
}
