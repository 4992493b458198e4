package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/obs"
	"github.com/noah-isme/storefront-rewards/internal/rewards"
)

// ErrNoUser is returned when a balance is requested without a user id.
var ErrNoUser = errors.New("balance: user id required")

// Refresh sources recorded on metrics and logs.
const (
	SourceRequest  = "request"
	SourceRedeem   = "redeem"
	SourceCheckout = "checkout"
	SourceWorker   = "worker"
)

// Fetcher retrieves the authoritative balance.
type Fetcher interface {
	Balance(ctx context.Context, userID string) (rewards.PointsBalance, error)
}

// Snapshot is a cached balance with the time it was fetched.
type Snapshot struct {
	TotalPoints int64     `json:"total_points"`
	FetchedAt   time.Time `json:"fetched_at"`
	Stale       bool      `json:"stale"`
}

// Service keeps a per-user snapshot of the points balance.
type Service struct {
	Fetcher Fetcher
	Store   *cache.Store
	Queue   *Enqueuer
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Get returns the cached snapshot, fetching it when missing or when refresh
// is set. A failed fetch falls back to the cached value marked stale.
func (s *Service) Get(ctx context.Context, userID string, refresh bool) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrNoUser
	}
	var cached Snapshot
	found, err := s.Store.GetJSON(ctx, cache.KeyBalance(userID), &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Msg("read balance snapshot")
		found = false
	}
	if found && !refresh {
		return cached, nil
	}
	fresh, err := s.Refresh(ctx, userID, SourceRequest)
	if err != nil {
		if found {
			cached.Stale = true
			return cached, nil
		}
		return Snapshot{}, err
	}
	return fresh, nil
}

// Refresh fetches the balance upstream and stores it.
func (s *Service) Refresh(ctx context.Context, userID, source string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrNoUser
	}
	if s.Fetcher == nil {
		return Snapshot{}, errors.New("balance: fetcher not configured")
	}
	b, err := s.Fetcher.Balance(ctx, userID)
	if err != nil {
		obs.CountBalanceRefresh(source, "error")
		return Snapshot{}, fmt.Errorf("fetch balance: %w", err)
	}
	snap := Snapshot{TotalPoints: b.TotalPoints, FetchedAt: s.now()}
	if err := s.Store.SetJSON(ctx, cache.KeyBalance(userID), snap); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", userID).Msg("store balance snapshot")
	}
	obs.CountBalanceRefresh(source, "ok")
	return snap, nil
}

// RefreshOrDefer refetches after a submission made by source. When the
// upstream cannot be reached the cached snapshot is dropped and a background
// refresh is queued.
func (s *Service) RefreshOrDefer(ctx context.Context, userID, source string) (Snapshot, bool) {
	snap, err := s.Refresh(ctx, userID, source)
	if err == nil {
		return snap, true
	}
	log := zerolog.Ctx(ctx)
	if log.GetLevel() == zerolog.Disabled {
		log = &s.Logger
	}
	log.Warn().Err(err).Str("user_id", userID).Str("source", source).Msg("refetch balance after submission")
	_ = s.Store.Delete(ctx, cache.KeyBalance(userID))
	if s.Queue != nil {
		if qerr := s.Queue.EnqueueRefresh(ctx, userID); qerr != nil {
			log.Error().Err(qerr).Str("user_id", userID).Msg("enqueue balance refresh")
		}
	}
	return Snapshot{}, false
}

// Points returns the cached points total, fetching it when missing.
func (s *Service) Points(ctx context.Context, userID string) (int64, error) {
	snap, err := s.Get(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	return snap.TotalPoints, nil
}
