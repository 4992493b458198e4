package pricing

import "sort"

const (
	// RetailGroupKey identifies the single group returned for retail accounts.
	RetailGroupKey = "no-iva"
	// MissingIvaGroupKey identifies business lines that carry no IVA rate.
	MissingIvaGroupKey = "sin-iva"
)

// OptionalInt is an optional non-negative integer such as stock or box size.
type OptionalInt struct {
	Value int
	Valid bool
}

// SomeInt wraps a present value.
func SomeInt(v int) OptionalInt { return OptionalInt{Value: v, Valid: true} }

// CartLine describes one product line of the shopping cart.
type CartLine struct {
	ID                   string
	Name                 string
	Price                float64
	Quantity             int
	IVA                  Percent
	RedeemableWithPoints bool
	UnitsPerBox          OptionalInt
	Stock                OptionalInt
}

// Subtotal returns price times quantity for the line.
func (l CartLine) Subtotal() float64 {
	if l.Quantity <= 0 {
		return 0
	}
	return l.Price * float64(l.Quantity)
}

// IvaGroup collects lines sharing the same normalized IVA rate.
type IvaGroup struct {
	Key   string
	Value Percent
	Items []CartLine
	TaxBreakdown
}

// GrandTotals sums the breakdowns of every IVA group.
type GrandTotals struct {
	GrandSubtotal  float64 `json:"grandSubtotal"`
	GrandIvaAmount float64 `json:"grandIvaAmount"`
	GrandTotal     float64 `json:"grandTotal"`
}

// SimpleSubtotal sums price times quantity over every line.
func SimpleSubtotal(lines []CartLine) float64 {
	var subtotal float64
	for _, l := range lines {
		subtotal += l.Subtotal()
	}
	return subtotal
}

// GroupByIva partitions lines by normalized IVA rate. Retail accounts always
// get one group holding every line. Business groups are sorted by ascending
// rate with the rate-less group last; line order inside a group is preserved.
func GroupByIva(lines []CartLine, class AccountClass) []IvaGroup {
	if class != Business {
		items := make([]CartLine, len(lines))
		copy(items, lines)
		subtotal := SimpleSubtotal(items)
		return []IvaGroup{{
			Key:          RetailGroupKey,
			Items:        items,
			TaxBreakdown: ComputeTaxAmount(subtotal, NoPercent(), class),
		}}
	}

	index := make(map[string]int)
	groups := make([]IvaGroup, 0)
	for _, l := range lines {
		key := MissingIvaGroupKey
		value := NoPercent()
		if pct, ok := l.IVA.normalized(); ok {
			key = NormalizeIvaPercent(l.IVA)
			value = SomePercent(pct)
		}
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, IvaGroup{Key: key, Value: value})
		}
		groups[pos].Items = append(groups[pos].Items, l)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Value, groups[j].Value
		switch {
		case !a.Valid:
			return false
		case !b.Valid:
			return true
		default:
			return a.Value < b.Value
		}
	})

	for i := range groups {
		var b TaxBreakdown
		for _, l := range groups[i].Items {
			lt := ComputeTaxAmount(l.Subtotal(), l.IVA, class)
			b.Subtotal += lt.Subtotal
			b.IvaAmount += lt.IvaAmount
		}
		b.Total = b.Subtotal + b.IvaAmount
		groups[i].TaxBreakdown = b
	}
	return groups
}

// ComputeGrandTotals sums the per-group tax breakdowns.
func ComputeGrandTotals(lines []CartLine, class AccountClass) GrandTotals {
	return sumGroups(GroupByIva(lines, class))
}

func sumGroups(groups []IvaGroup) GrandTotals {
	var totals GrandTotals
	for _, g := range groups {
		totals.GrandSubtotal += g.Subtotal
		totals.GrandIvaAmount += g.IvaAmount
		totals.GrandTotal += g.Total
	}
	return totals
}
