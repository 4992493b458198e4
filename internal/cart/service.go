package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

// ErrNotFound indicates the line is not in the cart.
var ErrNotFound = errors.New("cart line not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrOutOfStock is returned when a product has no stock left.
var ErrOutOfStock = errors.New("product out of stock")

// Line is a product line as stored in the session cart.
type Line struct {
	ID                   string          `json:"id" validate:"required,max=128"`
	Name                 string          `json:"name" validate:"max=256"`
	Price                float64         `json:"price" validate:"gte=0"`
	Quantity             int             `json:"quantity" validate:"gte=1"`
	IVA                  pricing.Percent `json:"iva"`
	RedeemableWithPoints bool            `json:"redeemable_with_points"`
	UnitsPerBox          *int            `json:"units_per_box,omitempty" validate:"omitempty,gte=1"`
	Stock                *int            `json:"stock,omitempty" validate:"omitempty,gte=0"`
}

// PricingLine converts the line for the pricing engine. Missing stock and box
// size stay absent.
func (l Line) PricingLine() pricing.CartLine {
	out := pricing.CartLine{
		ID:                   l.ID,
		Name:                 l.Name,
		Price:                l.Price,
		Quantity:             l.Quantity,
		IVA:                  l.IVA,
		RedeemableWithPoints: l.RedeemableWithPoints,
	}
	if l.UnitsPerBox != nil {
		out.UnitsPerBox = pricing.SomeInt(*l.UnitsPerBox)
	}
	if l.Stock != nil {
		out.Stock = pricing.SomeInt(*l.Stock)
	}
	return out
}

// Cart is the product cart of one session. Lines keep insertion order.
type Cart struct {
	Lines []Line `json:"lines"`
}

func (c *Cart) index(id string) int {
	for i := range c.Lines {
		if c.Lines[i].ID == id {
			return i
		}
	}
	return -1
}

// PricingLines converts every line for the pricing engine.
func (c Cart) PricingLines() []pricing.CartLine {
	out := make([]pricing.CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, l.PricingLine())
	}
	return out
}

// NormalizeQuantity rounds qty up to a whole number of boxes and caps it at the
// stock. When a full box does not fit in the stock the largest whole number of
// boxes that does is used.
func NormalizeQuantity(qty int, unitsPerBox, stock *int) int {
	if qty < 0 {
		qty = 0
	}
	box := 1
	if unitsPerBox != nil && *unitsPerBox > 1 {
		box = *unitsPerBox
	}
	if rem := qty % box; rem != 0 {
		qty += box - rem
	}
	if stock != nil && qty > *stock {
		limit := *stock
		if limit < 0 {
			limit = 0
		}
		qty = limit - limit%box
	}
	return qty
}

// Pricing holds the storefront parameters the totals depend on.
type Pricing struct {
	PointsRate  float64
	Shipping    float64
	FloorAtZero bool
}

// Service encapsulates cart domain operations over the session store.
type Service struct {
	Store   *cache.Store
	Pricing Pricing
}

func (s *Service) load(ctx context.Context, sessionID string) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	var c Cart
	if _, err := s.Store.GetJSON(ctx, cache.KeyCart(sessionID), &c); err != nil {
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, sessionID string, c Cart) error {
	if len(c.Lines) == 0 {
		return s.Store.Delete(ctx, cache.KeyCart(sessionID))
	}
	if err := s.Store.SetJSON(ctx, cache.KeyCart(sessionID), c); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Get returns the session cart. A missing cart is empty.
func (s *Service) Get(ctx context.Context, sessionID string) (Cart, error) {
	return s.load(ctx, sessionID)
}

// Add puts a line into the cart. Re-adding a product adds to its quantity and
// refreshes its price data.
func (s *Service) Add(ctx context.Context, sessionID string, line Line) (Line, error) {
	if line.ID == "" || line.Quantity < 1 {
		return Line{}, ErrInvalidInput
	}
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return Line{}, err
	}
	qty := line.Quantity
	i := c.index(line.ID)
	if i >= 0 {
		qty += c.Lines[i].Quantity
	}
	line.Quantity = NormalizeQuantity(qty, line.UnitsPerBox, line.Stock)
	if line.Quantity == 0 {
		return Line{}, ErrOutOfStock
	}
	if i >= 0 {
		c.Lines[i] = line
	} else {
		c.Lines = append(c.Lines, line)
	}
	if err := s.save(ctx, sessionID, c); err != nil {
		return Line{}, err
	}
	return line, nil
}

// SetQuantity replaces the quantity of a line. Zero removes it.
func (s *Service) SetQuantity(ctx context.Context, sessionID, id string, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, ErrInvalidInput
	}
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	i := c.index(id)
	if i < 0 {
		return Cart{}, ErrNotFound
	}
	line := c.Lines[i]
	qty = NormalizeQuantity(qty, line.UnitsPerBox, line.Stock)
	if qty == 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	} else {
		c.Lines[i].Quantity = qty
	}
	if err := s.save(ctx, sessionID, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Remove deletes a line.
func (s *Service) Remove(ctx context.Context, sessionID, id string) (Cart, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	i := c.index(id)
	if i < 0 {
		return Cart{}, ErrNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	if err := s.save(ctx, sessionID, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return s.Store.Delete(ctx, cache.KeyCart(sessionID))
}

// Totals prices the cart for an account class. availablePoints is only used
// when usePoints is set.
func (s *Service) Totals(c Cart, class pricing.AccountClass, usePoints bool, availablePoints float64) pricing.OrderTotals {
	return pricing.ResolveFinalTotal(pricing.ResolveInput{
		Lines:           c.PricingLines(),
		Class:           class,
		UsePoints:       usePoints,
		AvailablePoints: availablePoints,
		PointsRate:      s.Pricing.PointsRate,
		Shipping:        s.Pricing.Shipping,
		FloorAtZero:     s.Pricing.FloorAtZero,
	})
}
