package rewards

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddIncrementRespectsStock(t *testing.T) {
	var c Cart
	item, err := c.Add(RewardItem{ID: "r1", Name: "Mug", PointsCost: 100, Stock: Limited(2)}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, item.Quantity)

	changed, err := c.Increment("r1")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = c.Increment("r1")
	require.NoError(t, err)
	require.False(t, changed)

	got, ok := c.Get("r1")
	require.True(t, ok)
	require.Equal(t, 2, got.Quantity)
	require.True(t, got.AtCeiling())
}

func TestAddMergesAndClamps(t *testing.T) {
	var c Cart
	_, err := c.Add(RewardItem{ID: "r1", PointsCost: 10, Stock: Limited(5)}, 0)
	require.NoError(t, err)
	item, err := c.Add(RewardItem{ID: "r1", PointsCost: 10, Stock: Limited(5)}, 9)
	require.NoError(t, err)
	require.Equal(t, 5, item.Quantity)
	require.Len(t, c.Items, 1)

	_, err = c.Add(RewardItem{ID: "r2", PointsCost: 10, Stock: Limited(0)}, 1)
	require.ErrorIs(t, err, ErrOutOfStock)
	_, err = c.Add(RewardItem{ID: "", PointsCost: 10}, 1)
	require.ErrorIs(t, err, ErrInvalidReward)
	_, err = c.Add(RewardItem{ID: "r3", PointsCost: -1}, 1)
	require.ErrorIs(t, err, ErrInvalidReward)

	unlimited, err := c.Add(RewardItem{ID: "r4", PointsCost: 1}, 1000)
	require.NoError(t, err)
	require.Equal(t, 1000, unlimited.Quantity)
}

func TestDecrementSetQuantityRemove(t *testing.T) {
	var c Cart
	_, _ = c.Add(RewardItem{ID: "a", PointsCost: 50}, 2)
	_, _ = c.Add(RewardItem{ID: "b", PointsCost: 25, Stock: Limited(3)}, 1)

	require.NoError(t, c.Decrement("a"))
	require.NoError(t, c.Decrement("a"))
	_, ok := c.Get("a")
	require.False(t, ok)
	require.ErrorIs(t, c.Decrement("a"), ErrNotInCart)

	require.NoError(t, c.SetQuantity("b", 10))
	got, _ := c.Get("b")
	require.Equal(t, 3, got.Quantity)
	require.NoError(t, c.SetQuantity("b", -4))
	require.True(t, c.Empty())

	_, _ = c.Add(RewardItem{ID: "c", PointsCost: 1}, 1)
	require.NoError(t, c.Remove("c"))
	require.ErrorIs(t, c.Remove("c"), ErrNotInCart)
	_, err := c.Increment("c")
	require.ErrorIs(t, err, ErrNotInCart)
}

func TestQuantityInvariant(t *testing.T) {
	var c Cart
	_, err := c.Add(RewardItem{ID: "r", PointsCost: 1, Stock: Limited(3)}, 1)
	require.NoError(t, err)
	ops := []func(){
		func() { _, _ = c.Increment("r") },
		func() { _, _ = c.Increment("r") },
		func() { _, _ = c.Increment("r") },
		func() { _, _ = c.Increment("r") },
		func() { _ = c.Decrement("r") },
		func() { _ = c.SetQuantity("r", 99) },
	}
	for _, op := range ops {
		op()
		for _, it := range c.Items {
			require.GreaterOrEqual(t, it.Quantity, 0)
			require.LessOrEqual(t, it.Quantity, 3)
		}
	}
}

func TestTotalsAndAffordability(t *testing.T) {
	var c Cart
	_, _ = c.Add(RewardItem{ID: "a", PointsCost: 200}, 2)
	_, _ = c.Add(RewardItem{ID: "b", PointsCost: 100}, 1)

	require.Equal(t, int64(500), c.TotalPointsCost())
	require.Equal(t, 3, c.TotalItems())
	require.False(t, CanAfford(c.TotalPointsCost(), 400))
	require.True(t, CanAfford(c.TotalPointsCost(), 500))

	c.Clear()
	require.True(t, c.Empty())
	require.Zero(t, c.TotalPointsCost())
}

func TestBuildRedemptionRequest(t *testing.T) {
	var c Cart
	_, _ = c.Add(RewardItem{ID: "b", PointsCost: 30}, 2)
	_, _ = c.Add(RewardItem{ID: "a", PointsCost: 10}, 1)

	req := BuildRedemptionRequest(&c)
	require.Equal(t, []RedemptionLine{
		{RewardID: "b", Quantity: 2, PointsCost: 30},
		{RewardID: "a", Quantity: 1, PointsCost: 10},
	}, req.Rewards)
	require.Equal(t, int64(70), req.TotalPoints)

	out, err := json.Marshal(req)
	require.NoError(t, err)
	require.JSONEq(t, `{"rewards":[{"reward_id":"b","quantity":2,"points_cost":30},{"reward_id":"a","quantity":1,"points_cost":10}],"total_points":70}`, string(out))
}

func TestStockJSON(t *testing.T) {
	var item RewardItem
	require.NoError(t, json.Unmarshal([]byte(`{"id":"r","points_cost":5,"stock":null}`), &item))
	_, limited := item.Stock.Ceiling()
	require.False(t, limited)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"r","points_cost":5,"stock":4}`), &item))
	ceiling, limited := item.Stock.Ceiling()
	require.True(t, limited)
	require.Equal(t, 4, ceiling)

	out, err := json.Marshal(RewardItem{ID: "r"})
	require.NoError(t, err)
	require.Contains(t, string(out), `"stock":null`)
}
