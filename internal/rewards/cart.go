package rewards

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	// ErrOutOfStock is returned when adding a reward whose stock is exhausted.
	ErrOutOfStock = errors.New("reward out of stock")
	// ErrNotInCart indicates the reward is not part of the rewards cart.
	ErrNotInCart = errors.New("reward not in cart")
	// ErrInvalidReward is returned for rewards missing an id or carrying a negative cost.
	ErrInvalidReward = errors.New("invalid reward")
)

// Stock is an optional quantity ceiling. The zero value is unlimited.
type Stock struct {
	n       int
	limited bool
}

// Unlimited returns a stock without ceiling.
func Unlimited() Stock { return Stock{} }

// Limited returns a stock capped at n. Negative values are treated as 0.
func Limited(n int) Stock {
	if n < 0 {
		n = 0
	}
	return Stock{n: n, limited: true}
}

// Ceiling returns the cap and whether one applies.
func (s Stock) Ceiling() (int, bool) { return s.n, s.limited }

// Clamp bounds qty to [0, ceiling].
func (s Stock) Clamp(qty int) int {
	if qty < 0 {
		return 0
	}
	if s.limited && qty > s.n {
		return s.n
	}
	return qty
}

// MarshalJSON encodes an unlimited stock as null.
func (s Stock) MarshalJSON() ([]byte, error) {
	if !s.limited {
		return []byte("null"), nil
	}
	return json.Marshal(s.n)
}

// UnmarshalJSON decodes null as unlimited.
func (s *Stock) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Unlimited()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Limited(n)
	return nil
}

// RewardItem is a points-denominated reward held in the rewards cart.
type RewardItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PointsCost int64  `json:"points_cost"`
	Stock      Stock  `json:"stock"`
	Quantity   int    `json:"quantity"`
}

// AtCeiling reports whether another unit would exceed the stock.
func (r RewardItem) AtCeiling() bool {
	ceiling, ok := r.Stock.Ceiling()
	return ok && r.Quantity >= ceiling
}

// PointsBalance is the snapshot of a user's points as reported upstream.
type PointsBalance struct {
	TotalPoints int64 `json:"total_points"`
}

// Cart is the rewards cart of a single session. Items keep insertion order.
type Cart struct {
	Items []RewardItem `json:"items"`
}

func (c *Cart) index(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns the item with the given id.
func (c *Cart) Get(id string) (RewardItem, bool) {
	if i := c.index(id); i >= 0 {
		return c.Items[i], true
	}
	return RewardItem{}, false
}

// Add puts qty units of item into the cart. A reward already present grows by
// qty. The resulting quantity is clamped to [1, stock].
func (c *Cart) Add(item RewardItem, qty int) (RewardItem, error) {
	if item.ID == "" || item.PointsCost < 0 {
		return RewardItem{}, ErrInvalidReward
	}
	if ceiling, ok := item.Stock.Ceiling(); ok && ceiling == 0 {
		return RewardItem{}, ErrOutOfStock
	}
	if qty < 1 {
		qty = 1
	}
	if i := c.index(item.ID); i >= 0 {
		existing := c.Items[i]
		existing.Name = item.Name
		existing.PointsCost = item.PointsCost
		existing.Stock = item.Stock
		existing.Quantity = existing.Stock.Clamp(existing.Quantity + qty)
		c.Items[i] = existing
		return existing, nil
	}
	item.Quantity = item.Stock.Clamp(qty)
	c.Items = append(c.Items, item)
	return item, nil
}

// Increment adds one unit. At the stock ceiling it is a no-op and reports false.
func (c *Cart) Increment(id string) (bool, error) {
	i := c.index(id)
	if i < 0 {
		return false, ErrNotInCart
	}
	if c.Items[i].AtCeiling() {
		return false, nil
	}
	c.Items[i].Quantity++
	return true, nil
}

// Decrement removes one unit; the item leaves the cart when it drops below 1.
func (c *Cart) Decrement(id string) error {
	i := c.index(id)
	if i < 0 {
		return ErrNotInCart
	}
	if c.Items[i].Quantity <= 1 {
		c.removeAt(i)
		return nil
	}
	c.Items[i].Quantity--
	return nil
}

// SetQuantity sets the quantity clamped to [0, stock]. Zero removes the item.
func (c *Cart) SetQuantity(id string, qty int) error {
	i := c.index(id)
	if i < 0 {
		return ErrNotInCart
	}
	qty = c.Items[i].Stock.Clamp(qty)
	if qty == 0 {
		c.removeAt(i)
		return nil
	}
	c.Items[i].Quantity = qty
	return nil
}

// Remove drops the item regardless of quantity.
func (c *Cart) Remove(id string) error {
	i := c.index(id)
	if i < 0 {
		return ErrNotInCart
	}
	c.removeAt(i)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
}

// Empty reports whether the cart holds no rewards.
func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) removeAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// TotalPointsCost sums points cost times quantity.
func (c *Cart) TotalPointsCost() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.PointsCost * int64(it.Quantity)
	}
	return total
}

// TotalItems sums quantities.
func (c *Cart) TotalItems() int {
	var total int
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// CanAfford reports whether the balance covers the cost. The check is advisory;
// the upstream API has the final word on redemption.
func CanAfford(totalCost, balance int64) bool {
	return totalCost <= balance
}
