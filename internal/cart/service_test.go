package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

func intPtr(v int) *int { return &v }

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{
		Store:   cache.NewStore(client, "test:", time.Hour),
		Pricing: Pricing{PointsRate: 1, FloorAtZero: true},
	}
}

func TestNormalizeQuantity(t *testing.T) {
	require.Equal(t, 3, NormalizeQuantity(3, nil, nil))
	require.Equal(t, 6, NormalizeQuantity(4, intPtr(6), nil))
	require.Equal(t, 12, NormalizeQuantity(7, intPtr(6), nil))
	require.Equal(t, 5, NormalizeQuantity(9, nil, intPtr(5)))
	require.Equal(t, 6, NormalizeQuantity(7, intPtr(6), intPtr(10)))
	require.Equal(t, 0, NormalizeQuantity(1, intPtr(6), intPtr(4)))
	require.Equal(t, 0, NormalizeQuantity(-2, nil, nil))
}

func TestAddMergesAndClamps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	line, err := svc.Add(ctx, "s1", Line{ID: "p1", Price: 2.5, Quantity: 2, Stock: intPtr(3)})
	require.NoError(t, err)
	require.Equal(t, 2, line.Quantity)

	line, err = svc.Add(ctx, "s1", Line{ID: "p1", Price: 2.75, Quantity: 2, Stock: intPtr(3)})
	require.NoError(t, err)
	require.Equal(t, 3, line.Quantity)

	c, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	require.Equal(t, 2.75, c.Lines[0].Price)

	_, err = svc.Add(ctx, "s1", Line{ID: "p2", Quantity: 1, Stock: intPtr(0)})
	require.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.Add(ctx, "s1", Line{ID: "", Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetQuantityAndRemove(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", Line{ID: "a", Price: 1, Quantity: 1, UnitsPerBox: intPtr(4)})
	require.NoError(t, err)
	_, err = svc.Add(ctx, "s1", Line{ID: "b", Price: 1, Quantity: 1})
	require.NoError(t, err)

	c, err := svc.SetQuantity(ctx, "s1", "a", 5)
	require.NoError(t, err)
	require.Equal(t, 8, c.Lines[0].Quantity)

	c, err = svc.SetQuantity(ctx, "s1", "a", 0)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	require.Equal(t, "b", c.Lines[0].ID)

	_, err = svc.SetQuantity(ctx, "s1", "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)

	c, err = svc.Remove(ctx, "s1", "b")
	require.NoError(t, err)
	require.Empty(t, c.Lines)

	c, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, c.Lines)
}

func TestTotalsUsesPricing(t *testing.T) {
	svc := newTestService(t)
	svc.Pricing.Shipping = 5
	c := Cart{Lines: []Line{
		{ID: "p1", Price: 10, Quantity: 2, IVA: pricing.SomePercent(0.21)},
		{ID: "p2", Price: 30, Quantity: 1, RedeemableWithPoints: true},
	}}

	business := svc.Totals(c, pricing.Business, false, 0)
	require.InDelta(t, 50, business.Subtotal, 1e-9)
	require.InDelta(t, 4.2, business.IvaAmount, 1e-9)
	require.InDelta(t, 59.2, business.FinalTotal, 1e-9)
	require.Len(t, business.Groups, 2)

	retail := svc.Totals(c, pricing.Retail, true, 100)
	require.Equal(t, 30.0, retail.PointsDiscount)
	require.Equal(t, int64(30), retail.UsedPoints)
	require.InDelta(t, 25, retail.FinalTotal, 1e-9)
}
