package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/storefront-rewards/internal/cache"
)

// Service persists rewards carts per session.
type Service struct {
	Store *cache.Store
}

// Load returns the session's rewards cart. A missing cart is empty.
func (s *Service) Load(ctx context.Context, sessionID string) (*Cart, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("rewards service not configured")
	}
	c := &Cart{}
	if _, err := s.Store.GetJSON(ctx, cache.KeyRewardsCart(sessionID), c); err != nil {
		return nil, fmt.Errorf("load rewards cart: %w", err)
	}
	return c, nil
}

// Save stores the cart. An empty cart is deleted.
func (s *Service) Save(ctx context.Context, sessionID string, c *Cart) error {
	if c == nil || c.Empty() {
		return s.Store.Delete(ctx, cache.KeyRewardsCart(sessionID))
	}
	if err := s.Store.SetJSON(ctx, cache.KeyRewardsCart(sessionID), c); err != nil {
		return fmt.Errorf("save rewards cart: %w", err)
	}
	return nil
}

// Mutate loads the cart, applies fn and saves the result when fn succeeds.
func (s *Service) Mutate(ctx context.Context, sessionID string, fn func(*Cart) error) (*Cart, error) {
	c, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear drops the session's rewards cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.Store == nil {
		return errors.New("rewards service not configured")
	}
	return s.Store.Delete(ctx, cache.KeyRewardsCart(sessionID))
}
