package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/balance"
	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/cart"
	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/lock"
	"github.com/noah-isme/storefront-rewards/internal/obs"
	"github.com/noah-isme/storefront-rewards/internal/pointsapi"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

var (
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUpstream wraps transport and upstream failures.
	ErrUpstream = errors.New("order service unavailable")
)

// OrderSubmitter posts orders upstream.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, userID string, req pointsapi.OrderRequest) (pointsapi.OrderResponse, error)
}

// Balances reads and refreshes point balances.
type Balances interface {
	Points(ctx context.Context, userID string) (int64, error)
	Refresh(ctx context.Context, userID, source string) (balance.Snapshot, error)
	RefreshOrDefer(ctx context.Context, userID, source string) (balance.Snapshot, bool)
}

// Input is one checkout request.
type Input struct {
	SessionID string
	UserID    string
	Class     pricing.AccountClass
	UsePoints bool
	Payment   *pointsapi.Payment
}

// Output is the accepted order with the totals it was priced at.
type Output struct {
	Order   pointsapi.OrderResponse
	Totals  pricing.OrderTotals
	Balance *int64
}

// Service prices the session cart and submits it as an order.
type Service struct {
	Carts    *cart.Service
	Balances Balances
	Upstream OrderSubmitter
	Latch    lock.Latch
	Logger   zerolog.Logger
}

// Create submits the order. The cart is cleared only once the order is accepted.
func (s *Service) Create(ctx context.Context, in Input) (Output, error) {
	if s.Carts == nil || s.Upstream == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	release, err := s.Latch.Acquire(ctx, cache.KeySubmitLatch("checkout", in.SessionID))
	if err != nil {
		return Output{}, err
	}
	defer release()

	log := s.logger(ctx).With().Str("session_id", in.SessionID).Str("user_id", in.UserID).Logger()
	class := in.Class.String()

	c, err := s.Carts.Get(ctx, in.SessionID)
	if err != nil {
		return Output{}, err
	}
	if len(c.Lines) == 0 {
		return Output{}, ErrEmptyCart
	}

	var available float64
	if in.UsePoints {
		if s.Balances == nil {
			return Output{}, errors.New("checkout balances not configured")
		}
		points, err := s.Balances.Points(ctx, in.UserID)
		if err != nil {
			obs.CountOrderSubmit(class, "upstream_error")
			log.Error().Err(err).Msg("balance lookup before checkout")
			return Output{}, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		available = float64(points)
	}
	totals := s.Carts.Totals(c, in.Class, in.UsePoints, available)

	req := pointsapi.OrderRequest{
		TotalAmount: pricing.Round2(totals.FinalTotal),
		UsedPoints:  totals.UsedPoints,
		Items:       make([]pointsapi.OrderItem, 0, len(c.Lines)),
		Payment:     in.Payment,
	}
	for _, l := range c.Lines {
		req.Items = append(req.Items, pointsapi.OrderItem{ProductID: l.ID, Quantity: l.Quantity, UnitPrice: l.Price})
	}

	order, err := s.Upstream.CreateOrder(ctx, in.UserID, req)
	if err != nil {
		if pointsapi.IsInsufficientPoints(err) && s.Balances != nil {
			obs.CountOrderSubmit(class, "insufficient_upstream")
			var apiErr *pointsapi.APIError
			msg := "not enough points for this order"
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				msg = apiErr.Message
			}
			details := map[string]any{"usedPoints": totals.UsedPoints}
			if snap, rerr := s.Balances.Refresh(ctx, in.UserID, balance.SourceCheckout); rerr == nil {
				details["balance"] = snap.TotalPoints
			}
			return Output{}, common.NewAppError(common.CodeInsufficientPoints, msg, http.StatusUnprocessableEntity, err).WithDetails(details)
		}
		obs.CountOrderSubmit(class, "upstream_error")
		log.Error().Err(err).Float64("total_amount", req.TotalAmount).Msg("submit order")
		return Output{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	obs.CountOrderSubmit(class, "success")
	obs.ObservePointsDiscount(totals.PointsDiscount)
	log.Info().Str("order_id", order.OrderID).Float64("total_amount", req.TotalAmount).Int64("used_points", req.UsedPoints).Msg("order accepted")
	if err := s.Carts.Clear(ctx, in.SessionID); err != nil {
		log.Error().Err(err).Msg("clear cart after order")
	}
	out := Output{Order: order, Totals: totals}
	if totals.UsedPoints > 0 && s.Balances != nil {
		if snap, ok := s.Balances.RefreshOrDefer(ctx, in.UserID, balance.SourceCheckout); ok {
			out.Balance = &snap.TotalPoints
		}
	}
	return out, nil
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}
