package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// PointsPerCurrencyUnit is the default exchange rate between loyalty points and currency.
const PointsPerCurrencyUnit = 1.0

// RedeemableSubtotal sums price times quantity over lines eligible for points.
func RedeemableSubtotal(lines []CartLine) (float64, bool) {
	var (
		total float64
		found bool
	)
	for _, l := range lines {
		if !l.RedeemableWithPoints {
			continue
		}
		found = true
		total += l.Subtotal()
	}
	return total, found
}

// CalculatePointsDiscount returns the currency discount obtained by applying
// points. The discount never exceeds the available balance nor the subtotal of
// the redeemable lines.
func CalculatePointsDiscount(lines []CartLine, usePoints bool, availablePoints float64) float64 {
	if !usePoints {
		return 0
	}
	redeemable, ok := RedeemableSubtotal(lines)
	if !ok {
		return 0
	}
	if availablePoints < 0 {
		availablePoints = 0
	}
	return math.Min(availablePoints, redeemable)
}

// PointsRedemption is the outcome of applying a balance to a cart: the whole
// points consumed and the currency discount they buy.
type PointsRedemption struct {
	UsedPoints int64
	Discount   float64
}

// RedeemPoints settles the points to spend in whole units before pricing
// them. UsedPoints never exceeds the balance and the discount never exceeds
// the redeemable subtotal nor UsedPoints/rate.
func RedeemPoints(lines []CartLine, usePoints bool, availablePoints, rate float64) PointsRedemption {
	if !usePoints || availablePoints < 1 {
		return PointsRedemption{}
	}
	redeemable, ok := RedeemableSubtotal(lines)
	if !ok || redeemable <= 0 {
		return PointsRedemption{}
	}
	if rate <= 0 {
		rate = PointsPerCurrencyUnit
	}
	r := decimal.NewFromFloat(rate)
	needed := decimal.NewFromFloat(redeemable).Mul(r).Ceil()
	used := decimal.NewFromFloat(availablePoints).Floor()
	if needed.LessThan(used) {
		used = needed
	}
	discount, _ := decimal.Min(decimal.NewFromFloat(redeemable), used.Div(r)).Float64()
	return PointsRedemption{UsedPoints: used.IntPart(), Discount: discount}
}
