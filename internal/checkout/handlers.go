package checkout

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/lock"
	"github.com/noah-isme/storefront-rewards/internal/pointsapi"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

// PaymentForm is the checkout payload.
type PaymentForm struct {
	CardHolder string `json:"card_holder" validate:"required,max=128"`
	CardNumber string `json:"card_number" validate:"required,numeric,min=12,max=19"`
	Expiry     string `json:"expiry" validate:"required,len=5"`
	CVC        string `json:"cvc" validate:"required,numeric,min=3,max=4"`
	UsePoints  bool   `json:"use_points"`
}

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc       *Service
	Formatter pricing.Formatter
	Currency  string
}

// Checkout validates the payment form and submits the session cart as an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var form PaymentForm
	if err := common.DecodeJSON(r, &form); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	out, err := h.Svc.Create(r.Context(), Input{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Class:     sess.Class,
		UsePoints: form.UsePoints,
		Payment: &pointsapi.Payment{
			CardHolder: form.CardHolder,
			CardNumber: form.CardNumber,
			Expiry:     form.Expiry,
			CVC:        form.CVC,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data := map[string]any{
		"orderId":        out.Order.OrderID,
		"status":         out.Order.Status,
		"finalTotal":     pricing.Round2(out.Totals.FinalTotal),
		"pointsDiscount": pricing.Round2(out.Totals.PointsDiscount),
		"usedPoints":     out.Totals.UsedPoints,
		"formatted":      h.Formatter.FormatTotals(out.Totals),
		"currency":       h.Currency,
	}
	if out.Balance != nil {
		data["balance"] = *out.Balance
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": data})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		common.WriteError(w, appErr)
	case errors.Is(err, lock.ErrHeld):
		common.JSONError(w, http.StatusConflict, common.CodeSubmissionInFlight, "an order is already being submitted", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrUpstream):
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstreamUnavailable, "could not place the order, please try again", nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("checkout failed")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to place order", nil)
	}
}
