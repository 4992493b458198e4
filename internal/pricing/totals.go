package pricing

// ResolveInput carries everything the final total depends on.
type ResolveInput struct {
	Lines           []CartLine
	Class           AccountClass
	UsePoints       bool
	AvailablePoints float64
	// PointsRate is the number of points worth one currency unit. Zero means PointsPerCurrencyUnit.
	PointsRate  float64
	Shipping    float64
	FloorAtZero bool
}

// OrderTotals is the computed payable breakdown for a cart.
type OrderTotals struct {
	Class          AccountClass
	Subtotal       float64
	IvaAmount      float64
	Total          float64
	Shipping       float64
	PointsDiscount float64
	UsedPoints     int64
	FinalTotal     float64
	Groups         []IvaGroup
}

// ResolveFinalTotal combines the aggregated cart, shipping and the points
// discount into the final payable amount. Business accounts pay the IVA
// grouped grand total; retail accounts pay the plain subtotal.
func ResolveFinalTotal(in ResolveInput) OrderTotals {
	rate := in.PointsRate
	if rate <= 0 {
		rate = PointsPerCurrencyUnit
	}
	groups := GroupByIva(in.Lines, in.Class)
	points := RedeemPoints(in.Lines, in.UsePoints, in.AvailablePoints, rate)
	discount := points.Discount

	out := OrderTotals{
		Class:          in.Class,
		Shipping:       in.Shipping,
		PointsDiscount: discount,
		UsedPoints:     points.UsedPoints,
		Groups:         groups,
	}
	switch in.Class {
	case Business:
		grand := sumGroups(groups)
		out.Subtotal = grand.GrandSubtotal
		out.IvaAmount = grand.GrandIvaAmount
		out.Total = grand.GrandTotal
		out.FinalTotal = grand.GrandTotal + in.Shipping - discount
	default:
		subtotal := SimpleSubtotal(in.Lines)
		out.Subtotal = subtotal
		out.Total = subtotal
		out.FinalTotal = subtotal + in.Shipping - discount
	}
	if in.FloorAtZero && out.FinalTotal < 0 {
		out.FinalTotal = 0
	}
	return out
}
