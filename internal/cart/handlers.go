package cart

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/balance"
	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/obs"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

// BalanceReader returns the user's points snapshot.
type BalanceReader interface {
	Get(ctx context.Context, userID string, refresh bool) (balance.Snapshot, error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc       *Service
	Balance   BalanceReader
	Formatter pricing.Formatter
	Currency  string
}

type lineView struct {
	Line
	Subtotal float64 `json:"subtotal"`
}

type groupView struct {
	Key       string          `json:"key"`
	Iva       pricing.Percent `json:"iva"`
	ItemIDs   []string        `json:"itemIds"`
	Subtotal  float64         `json:"subtotal"`
	IvaAmount float64         `json:"ivaAmount"`
	Total     float64         `json:"total"`
}

type totalsView struct {
	AccountClass   string                  `json:"accountClass"`
	Subtotal       float64                 `json:"subtotal"`
	IvaAmount      float64                 `json:"ivaAmount"`
	Total          float64                 `json:"total"`
	Shipping       float64                 `json:"shipping"`
	PointsDiscount float64                 `json:"pointsDiscount"`
	UsedPoints     int64                   `json:"usedPoints"`
	FinalTotal     float64                 `json:"finalTotal"`
	Formatted      pricing.FormattedTotals `json:"formatted"`
}

// Get returns the cart with its IVA groups and totals. With usePoints=true the
// user's balance is applied to the redeemable lines.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	c, err := h.Svc.Get(r.Context(), sess.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	usePoints, _ := strconv.ParseBool(r.URL.Query().Get("usePoints"))
	var (
		available float64
		points    *balance.Snapshot
	)
	if usePoints && sess.UserID != "" && h.Balance != nil {
		snap, err := h.Balance.Get(r.Context(), sess.UserID, false)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("cart balance lookup")
		} else {
			available = float64(snap.TotalPoints)
			points = &snap
		}
	}
	totals := h.Svc.Totals(c, sess.Class, usePoints, available)
	obs.ObservePointsDiscount(totals.PointsDiscount)

	data := map[string]any{
		"lines":    h.lineViews(c),
		"groups":   groupViews(totals.Groups),
		"totals":   h.totalsView(totals),
		"currency": h.Currency,
	}
	if points != nil {
		data["balance"] = points
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}

// AddItem adds a product line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	var line Line
	if err := common.DecodeJSON(r, &line); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	saved, err := h.Svc.Add(r.Context(), sess.ID, line)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": lineView{Line: saved, Subtotal: saved.PricingLine().Subtotal()}})
}

// UpdateItem sets the quantity of a line. Zero removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	var payload struct {
		Quantity *int `json:"quantity" validate:"required,gte=0"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	c, err := h.Svc.SetQuantity(r.Context(), sess.ID, chi.URLParam(r, "id"), *payload.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"lines": h.lineViews(c)}})
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	c, err := h.Svc.Remove(r.Context(), sess.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"lines": h.lineViews(c)}})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	if err := h.Svc.Clear(r.Context(), sess.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lineViews(c Cart) []lineView {
	out := make([]lineView, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, lineView{Line: l, Subtotal: pricing.Round2(l.PricingLine().Subtotal())})
	}
	return out
}

func groupViews(groups []pricing.IvaGroup) []groupView {
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		ids := make([]string, 0, len(g.Items))
		for _, it := range g.Items {
			ids = append(ids, it.ID)
		}
		out = append(out, groupView{
			Key:       g.Key,
			Iva:       g.Value,
			ItemIDs:   ids,
			Subtotal:  pricing.Round2(g.Subtotal),
			IvaAmount: pricing.Round2(g.IvaAmount),
			Total:     pricing.Round2(g.Total),
		})
	}
	return out
}

func (h *Handler) totalsView(t pricing.OrderTotals) totalsView {
	return totalsView{
		AccountClass:   t.Class.String(),
		Subtotal:       pricing.Round2(t.Subtotal),
		IvaAmount:      pricing.Round2(t.IvaAmount),
		Total:          pricing.Round2(t.Total),
		Shipping:       pricing.Round2(t.Shipping),
		PointsDiscount: pricing.Round2(t.PointsDiscount),
		UsedPoints:     t.UsedPoints,
		FinalTotal:     pricing.Round2(t.FinalTotal),
		Formatted:      h.Formatter.FormatTotals(t),
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.WriteError(w, appErr)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("cart request failed")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to process cart", nil)
	}
}
