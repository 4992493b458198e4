package pricing

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AccountClass selects which pricing presentation applies to a customer.
type AccountClass int

const (
	// Retail customers see tax-inclusive prices and never get an IVA breakdown.
	Retail AccountClass = iota
	// Business customers see tax-exclusive prices grouped by IVA rate.
	Business
)

func (c AccountClass) String() string {
	switch c {
	case Business:
		return "business"
	default:
		return "retail"
	}
}

// ParseAccountClass maps a role label onto an AccountClass. Unknown labels are Retail.
func ParseAccountClass(value string) AccountClass {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "business", "empresa", "b2b", "wholesale":
		return Business
	default:
		return Retail
	}
}

// Percent is an optional tax rate. Upstream data encodes it either as a
// fraction (0.21) or as a whole percent (21).
type Percent struct {
	Value float64
	Valid bool
}

// SomePercent wraps a present rate.
func SomePercent(v float64) Percent { return Percent{Value: v, Valid: true} }

// NoPercent is the absent rate.
func NoPercent() Percent { return Percent{} }

// MarshalJSON encodes an absent rate as null.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts a number, a numeric string or null.
func (p *Percent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = Percent{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if s == "" {
			*p = Percent{}
			return nil
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			// unparseable rates fall back to "no iva"
			*p = Percent{}
			return nil
		}
		*p = SomePercent(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*p = SomePercent(v)
	return nil
}

// normalized returns the rate as a whole, rounded percent.
func (p Percent) normalized() (float64, bool) {
	if !p.Valid {
		return 0, false
	}
	if p.Value > 0 && p.Value < 1 {
		return math.Round(p.Value * 100), true
	}
	return math.Round(p.Value), true
}

// percent returns the rate as a whole percent without rounding, so 0.052 and
// 5.2 both yield 5.2.
func (p Percent) percent() (float64, bool) {
	if !p.Valid {
		return 0, false
	}
	if p.Value > 0 && p.Value < 1 {
		return p.Value * 100, true
	}
	return p.Value, true
}

// NormalizeIvaPercent renders a tax rate as a whole percent without decimals.
// Missing rates render as "0"; 0 itself takes the whole-percent path.
func NormalizeIvaPercent(raw Percent) string {
	pct, ok := raw.normalized()
	if !ok {
		return "0"
	}
	return strconv.FormatFloat(pct, 'f', 0, 64)
}

// TaxBreakdown is the subtotal/tax/total triple for a group of lines.
type TaxBreakdown struct {
	Subtotal  float64 `json:"subtotal"`
	IvaAmount float64 `json:"ivaAmount"`
	Total     float64 `json:"total"`
}

// ComputeTaxAmount applies the IVA rate to a subtotal. Retail accounts and
// missing or zero rates yield no tax. Fractional rates such as 5.2 are charged
// unrounded; rounding only applies to the group key.
func ComputeTaxAmount(subtotal float64, iva Percent, class AccountClass) TaxBreakdown {
	pct, ok := iva.percent()
	if class != Business || !ok || pct == 0 {
		return TaxBreakdown{Subtotal: subtotal, Total: subtotal}
	}
	amount := subtotal * (pct / 100)
	return TaxBreakdown{
		Subtotal:  subtotal,
		IvaAmount: amount,
		Total:     subtotal + amount,
	}
}
