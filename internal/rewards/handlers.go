package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/common"
)

// BalanceReader returns the user's points balance.
type BalanceReader interface {
	Points(ctx context.Context, userID string) (int64, error)
}

// Handler exposes the rewards cart over HTTP.
type Handler struct {
	Svc     *Service
	Balance BalanceReader
}

type addRequest struct {
	ID         string          `json:"id" validate:"required,max=128"`
	Name       string          `json:"name" validate:"max=256"`
	PointsCost *int64          `json:"points_cost" validate:"required,gte=0"`
	Stock      json.RawMessage `json:"stock,omitempty"`
	Quantity   int             `json:"quantity" validate:"gte=0"`
}

func (a addRequest) item() (RewardItem, error) {
	item := RewardItem{ID: a.ID, Name: a.Name, PointsCost: *a.PointsCost}
	if len(a.Stock) > 0 {
		if err := json.Unmarshal(a.Stock, &item.Stock); err != nil {
			return RewardItem{}, common.ValidationError("validation failed", map[string]string{"stock": "must be an integer or null"})
		}
	}
	return item, nil
}

type cartView struct {
	Items       []RewardItem `json:"items"`
	TotalPoints int64        `json:"totalPoints"`
	TotalItems  int          `json:"totalItems"`
	Balance     *int64       `json:"balance,omitempty"`
	CanAfford   *bool        `json:"canAfford,omitempty"`
}

// Get returns the rewards cart with its totals and, when the user is known,
// the balance and whether it covers the cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "rewards service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	c, err := h.Svc.Load(r.Context(), sess.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(r, c)})
}

// AddItem adds a reward. Quantity defaults to one and is clamped to the stock.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload addRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := payload.item()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, http.StatusCreated, func(c *Cart) error {
		_, err := c.Add(item, payload.Quantity)
		return err
	})
}

// Increment adds one unit of a reward; at the stock ceiling nothing changes.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, http.StatusOK, func(c *Cart) error {
		_, err := c.Increment(id)
		return err
	})
}

// Decrement removes one unit of a reward.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, http.StatusOK, func(c *Cart) error { return c.Decrement(id) })
}

// UpdateItem sets the quantity of a reward. Zero removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity *int `json:"quantity" validate:"required,gte=0"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	h.mutate(w, r, http.StatusOK, func(c *Cart) error { return c.SetQuantity(id, *payload.Quantity) })
}

// RemoveItem drops a reward.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, http.StatusOK, func(c *Cart) error { return c.Remove(id) })
}

// Clear empties the rewards cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "rewards service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	if err := h.Svc.Clear(r.Context(), sess.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(*Cart) error) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "rewards service not configured", nil)
		return
	}
	sess, _ := common.SessionFrom(r.Context())
	c, err := h.Svc.Mutate(r.Context(), sess.ID, fn)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": h.view(r, c)})
}

func (h *Handler) view(r *http.Request, c *Cart) cartView {
	items := c.Items
	if items == nil {
		items = []RewardItem{}
	}
	v := cartView{Items: items, TotalPoints: c.TotalPointsCost(), TotalItems: c.TotalItems()}
	sess, _ := common.SessionFrom(r.Context())
	if h.Balance == nil || sess.UserID == "" {
		return v
	}
	points, err := h.Balance.Points(r.Context(), sess.UserID)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rewards balance lookup")
		return v
	}
	afford := CanAfford(v.TotalPoints, points)
	v.Balance = &points
	v.CanAfford = &afford
	return v
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.WriteError(w, appErr)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidReward):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, ErrNotInCart):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("rewards request failed")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to process rewards cart", nil)
	}
}
