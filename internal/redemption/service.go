package redemption

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/balance"
	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/lock"
	"github.com/noah-isme/storefront-rewards/internal/obs"
	"github.com/noah-isme/storefront-rewards/internal/pointsapi"
	"github.com/noah-isme/storefront-rewards/internal/rewards"
)

var (
	// ErrEmptyCart is returned when redeeming an empty rewards cart.
	ErrEmptyCart = errors.New("rewards cart is empty")
	// ErrUpstream wraps transport and upstream failures.
	ErrUpstream = errors.New("points service unavailable")
)

// InsufficientPointsError reports a balance that does not cover the cart.
// Upstream is set when the points service refused the redemption.
type InsufficientPointsError struct {
	Required int64
	Balance  int64
	Message  string
	Upstream bool
}

func (e *InsufficientPointsError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("insufficient points: need %d, have %d", e.Required, e.Balance)
}

// Submitter posts redemptions upstream.
type Submitter interface {
	Redeem(ctx context.Context, userID string, req rewards.RedemptionRequest) error
}

// Balances reads and refreshes point balances.
type Balances interface {
	Points(ctx context.Context, userID string) (int64, error)
	Refresh(ctx context.Context, userID, source string) (balance.Snapshot, error)
	RefreshOrDefer(ctx context.Context, userID, source string) (balance.Snapshot, bool)
}

// Result describes a completed redemption.
type Result struct {
	Request rewards.RedemptionRequest
	Balance *int64
}

// Service submits the session's rewards cart.
type Service struct {
	Carts    *rewards.Service
	Balances Balances
	Upstream Submitter
	Latch    lock.Latch
	Logger   zerolog.Logger
}

// Redeem runs one redemption for the session. Only one submission per session
// runs at a time; a concurrent call gets lock.ErrHeld. The cart is cleared
// only after the upstream accepted the redemption.
func (s *Service) Redeem(ctx context.Context, sessionID, userID string) (Result, error) {
	if s.Carts == nil || s.Balances == nil || s.Upstream == nil {
		return Result{}, errors.New("redemption service not configured")
	}
	release, err := s.Latch.Acquire(ctx, cache.KeySubmitLatch("redeem", sessionID))
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			obs.CountRedemption("in_flight")
		}
		return Result{}, err
	}
	defer release()

	log := s.logger(ctx).With().Str("session_id", sessionID).Str("user_id", userID).Logger()

	cart, err := s.Carts.Load(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if cart.Empty() {
		return Result{}, ErrEmptyCart
	}
	total := cart.TotalPointsCost()
	points, err := s.Balances.Points(ctx, userID)
	if err != nil {
		obs.CountRedemption("upstream_error")
		log.Error().Err(err).Msg("balance lookup before redemption")
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if !rewards.CanAfford(total, points) {
		obs.CountRedemption("insufficient_local")
		return Result{}, &InsufficientPointsError{Required: total, Balance: points}
	}

	req := rewards.BuildRedemptionRequest(cart)
	if err := s.Upstream.Redeem(ctx, userID, req); err != nil {
		if pointsapi.IsInsufficientPoints(err) {
			obs.CountRedemption("insufficient_upstream")
			out := &InsufficientPointsError{Required: total, Balance: points, Upstream: true}
			var apiErr *pointsapi.APIError
			if errors.As(err, &apiErr) {
				out.Message = apiErr.Message
			}
			if snap, rerr := s.Balances.Refresh(ctx, userID, balance.SourceRedeem); rerr == nil {
				out.Balance = snap.TotalPoints
			} else {
				log.Warn().Err(rerr).Msg("refetch balance after refused redemption")
			}
			return Result{}, out
		}
		obs.CountRedemption("upstream_error")
		log.Error().Err(err).Int64("total_points", total).Msg("submit redemption")
		return Result{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	obs.CountRedemption("success")
	log.Info().Int64("total_points", total).Int("lines", len(req.Rewards)).Msg("redemption accepted")
	if err := s.Carts.Clear(ctx, sessionID); err != nil {
		log.Error().Err(err).Msg("clear rewards cart after redemption")
	}
	res := Result{Request: req}
	if snap, ok := s.Balances.RefreshOrDefer(ctx, userID, balance.SourceRedeem); ok {
		res.Balance = &snap.TotalPoints
	}
	return res, nil
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.Logger
}
