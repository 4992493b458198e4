package redemption

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/lock"
)

// Handler exposes redemption over HTTP.
type Handler struct {
	Svc *Service
}

// Redeem submits the session's rewards cart.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "redemption service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	res, err := h.Svc.Redeem(r.Context(), sess.ID, sess.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := map[string]any{
		"redeemed":    res.Request.Rewards,
		"totalPoints": res.Request.TotalPoints,
	}
	if res.Balance != nil {
		data["balance"] = *res.Balance
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		msg := "not enough points to redeem this cart"
		if insufficient.Upstream && insufficient.Message != "" {
			msg = insufficient.Message
		}
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInsufficientPoints, msg, map[string]any{
			"required": insufficient.Required,
			"balance":  insufficient.Balance,
		})
	case errors.Is(err, lock.ErrHeld):
		common.JSONError(w, http.StatusConflict, common.CodeSubmissionInFlight, "a redemption is already in progress", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrUpstream):
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "could not complete the redemption, please try again", nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("redemption failed")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to redeem rewards", nil)
	}
}
