package balance

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/common"
)

// Handler exposes the balance snapshot over HTTP.
type Handler struct {
	Svc *Service
}

// Get returns the user's points. refresh=true forces an upstream fetch.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "balance service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	snap, err := h.Svc.Get(r.Context(), sess.UserID, refresh)
	if err != nil {
		if errors.Is(err, ErrNoUser) {
			common.JSONError(w, http.StatusUnauthorized, common.CodeSessionRequired, err.Error(), nil)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("balance lookup")
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "could not load your points balance", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}
