package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale is used when no display locale is configured.
const DefaultLocale = "es-ES"

// Round2 rounds a currency amount to two decimals, half away from zero.
func Round2(v float64) float64 {
	rounded, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return rounded
}

// Fixed2 renders a currency amount with exactly two decimals and no grouping.
func Fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Formatter renders currency amounts with locale separators.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for a BCP 47 locale tag. Invalid tags fall back to DefaultLocale.
func NewFormatter(locale string) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return Formatter{printer: message.NewPrinter(tag)}
}

// Format renders v rounded to two decimals with thousand and decimal separators.
func (f Formatter) Format(v float64) string {
	p := f.printer
	if p == nil {
		p = message.NewPrinter(language.MustParse(DefaultLocale))
	}
	return p.Sprint(number.Decimal(Round2(v), number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// FormatCurrency renders v for the given locale.
func FormatCurrency(v float64, locale string) string {
	return NewFormatter(locale).Format(v)
}

// FormattedTotals is the display rendition of OrderTotals.
type FormattedTotals struct {
	Subtotal       string `json:"subtotal"`
	IvaAmount      string `json:"ivaAmount"`
	Total          string `json:"total"`
	Shipping       string `json:"shipping"`
	PointsDiscount string `json:"pointsDiscount"`
	FinalTotal     string `json:"finalTotal"`
}

// FormatTotals renders every amount of the totals for display.
func (f Formatter) FormatTotals(t OrderTotals) FormattedTotals {
	return FormattedTotals{
		Subtotal:       f.Format(t.Subtotal),
		IvaAmount:      f.Format(t.IvaAmount),
		Total:          f.Format(t.Total),
		Shipping:       f.Format(t.Shipping),
		PointsDiscount: f.Format(t.PointsDiscount),
		FinalTotal:     f.Format(t.FinalTotal),
	}
}
