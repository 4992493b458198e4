package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFinalTotalBusinessScenario(t *testing.T) {
	totals := ResolveFinalTotal(ResolveInput{
		Lines: []CartLine{{ID: "p1", Price: 10, Quantity: 2, IVA: SomePercent(0.21)}},
		Class: Business,
	})
	require.InDelta(t, 20, totals.Subtotal, 1e-9)
	require.InDelta(t, 4.2, totals.IvaAmount, 1e-9)
	require.InDelta(t, 24.2, totals.Total, 1e-9)
	require.InDelta(t, 24.2, totals.FinalTotal, 1e-9)
	require.Zero(t, totals.PointsDiscount)
	require.Zero(t, totals.UsedPoints)
}

func TestResolveFinalTotalRetailPoints(t *testing.T) {
	totals := ResolveFinalTotal(ResolveInput{
		Lines:           []CartLine{{ID: "p1", Price: 50, Quantity: 1, RedeemableWithPoints: true}},
		Class:           Retail,
		UsePoints:       true,
		AvailablePoints: 30,
	})
	require.Equal(t, 30.0, totals.PointsDiscount)
	require.Equal(t, int64(30), totals.UsedPoints)
	require.Equal(t, 20.0, totals.FinalTotal)
	require.Zero(t, totals.IvaAmount)
}

func TestResolveFinalTotalRetailIgnoresIva(t *testing.T) {
	totals := ResolveFinalTotal(ResolveInput{
		Lines:    []CartLine{{Price: 10, Quantity: 2, IVA: SomePercent(21)}},
		Class:    Retail,
		Shipping: 4.5,
	})
	require.Equal(t, 20.0, totals.Total)
	require.Equal(t, 24.5, totals.FinalTotal)
}

func TestResolveFinalTotalFloor(t *testing.T) {
	lines := []CartLine{{Price: 10, Quantity: 1, RedeemableWithPoints: true}}
	open := ResolveFinalTotal(ResolveInput{Lines: lines, UsePoints: true, AvailablePoints: 100, Shipping: -5})
	require.Less(t, open.FinalTotal, 0.0)

	floored := ResolveFinalTotal(ResolveInput{Lines: lines, UsePoints: true, AvailablePoints: 100, Shipping: -5, FloorAtZero: true})
	require.Equal(t, 0.0, floored.FinalTotal)
}

func TestResolveFinalTotalPointsRate(t *testing.T) {
	totals := ResolveFinalTotal(ResolveInput{
		Lines:           []CartLine{{Price: 50, Quantity: 1, RedeemableWithPoints: true}},
		UsePoints:       true,
		AvailablePoints: 300,
		PointsRate:      10,
	})
	require.Equal(t, 30.0, totals.PointsDiscount)
	require.Equal(t, int64(300), totals.UsedPoints)
}

func TestCalculatePointsDiscount(t *testing.T) {
	lines := []CartLine{
		{Price: 40, Quantity: 1, RedeemableWithPoints: true},
		{Price: 25, Quantity: 2},
		{Price: 5, Quantity: 2, RedeemableWithPoints: true},
	}
	require.Zero(t, CalculatePointsDiscount(lines, false, 1000))
	require.Zero(t, CalculatePointsDiscount([]CartLine{{Price: 10, Quantity: 1}}, true, 1000))
	require.Zero(t, CalculatePointsDiscount(lines, true, -10))

	redeemable, ok := RedeemableSubtotal(lines)
	require.True(t, ok)
	require.Equal(t, 50.0, redeemable)

	prev := 0.0
	for points := 0.0; points <= 80; points += 5 {
		got := CalculatePointsDiscount(lines, true, points)
		require.GreaterOrEqual(t, got, prev)
		require.LessOrEqual(t, got, points)
		require.LessOrEqual(t, got, redeemable)
		prev = got
	}
	require.Equal(t, redeemable, prev)
}

func TestRedeemPointsWholeUnits(t *testing.T) {
	lines := []CartLine{{Price: 12.5, Quantity: 1, RedeemableWithPoints: true}}
	require.Equal(t, PointsRedemption{}, RedeemPoints(lines, true, 0, 1))
	require.Equal(t, PointsRedemption{}, RedeemPoints(lines, false, 100, 1))

	full := RedeemPoints(lines, true, 100, 1)
	require.Equal(t, int64(13), full.UsedPoints)
	require.Equal(t, 12.5, full.Discount)

	partial := RedeemPoints(lines, true, 7.9, 1)
	require.Equal(t, int64(7), partial.UsedPoints)
	require.Equal(t, 7.0, partial.Discount)
}

func TestResolveFinalTotalUsedPointsWithinBalance(t *testing.T) {
	lines := []CartLine{{Price: 500, Quantity: 1, RedeemableWithPoints: true}}
	for _, rate := range []float64{0.5, 1, 3, 7, 100} {
		for _, balance := range []float64{0, 1, 2, 5, 100, 1e6} {
			totals := ResolveFinalTotal(ResolveInput{
				Lines:           lines,
				UsePoints:       true,
				AvailablePoints: balance,
				PointsRate:      rate,
			})
			require.LessOrEqual(t, float64(totals.UsedPoints), balance, "rate=%v balance=%v", rate, balance)
			require.LessOrEqual(t, totals.PointsDiscount, 500.0)
			require.InDelta(t, float64(totals.UsedPoints)/rate, totals.PointsDiscount, 1e-9, "rate=%v balance=%v", rate, balance)
		}
	}

	thirds := ResolveFinalTotal(ResolveInput{Lines: lines, UsePoints: true, AvailablePoints: 2, PointsRate: 3})
	require.Equal(t, int64(2), thirds.UsedPoints)
	require.InDelta(t, 0.6667, thirds.PointsDiscount, 1e-4)
}

func TestFormatter(t *testing.T) {
	require.Equal(t, "1,234.50", NewFormatter("en-US").Format(1234.5))
	require.Equal(t, "1.234.567,89", NewFormatter("es-ES").Format(1234567.891))
	require.Equal(t, "24,20", FormatCurrency(24.2, "es-ES"))
	require.Equal(t, "24.20", Fixed2(24.2))
	require.Equal(t, 0.13, Round2(0.125))
}
