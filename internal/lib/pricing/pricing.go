package pricing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
)

// nonAmount strips everything that is not a digit or a separator, so
// currency symbols, codes and surrounding words fall away.
var nonAmount = regexp.MustCompile(`[^0-9.,]`)

// grouped matches digits split into thousands groups by a single
// separator kind, e.g. 1.299 or 12,499,000.
var groupedComma = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
var groupedDot = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

// Parse normalizes raw price text to a positive decimal amount.
// Currency symbols and thousands separators are stripped and both
// "1,299.95" and "1.299,95" layouts are understood. Text that does not
// reduce to a positive number yields ok=false, never zero.
func Parse(raw string) (decimal.Decimal, bool) {
	s := nonAmount.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return decimal.Decimal{}, false
	}

	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() <= 0 {
		return decimal.Decimal{}, false
	}

	return d, true
}

// normalizeSeparators rewrites s so that '.' is the decimal point and
// no grouping separators remain.
func normalizeSeparators(s string) string {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		// Both present: the later one is the decimal point.
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if groupedComma.MatchString(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			// Treat a lone comma as the decimal point; extra commas
			// can only be malformed grouping, drop them.
			s = strings.ReplaceAll(s[:comma], ",", "") + "." + s[comma+1:]
		}
	case dot >= 0:
		if groupedDot.MatchString(s) {
			s = strings.ReplaceAll(s, ".", "")
		} else if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s[:dot], ".", "") + s[dot:]
		}
	}

	return s
}

// IsOnSale reports a markdown: a present list price strictly above the
// present current price, compared exactly.
func IsOnSale(current, list decimal.NullDecimal) bool {
	if !current.Valid || !list.Valid {
		return false
	}
	if list.Decimal.Sign() <= 0 {
		return false
	}

	return list.Decimal.GreaterThan(current.Decimal)
}

// DiscountPercent is round-half-up(100 * (1 - current/list)), defined
// only while IsOnSale holds.
func DiscountPercent(current, list decimal.NullDecimal) (int64, bool) {
	if !IsOnSale(current, list) {
		return 0, false
	}

	pct := decimal.NewFromInt(100).Mul(
		decimal.NewFromInt(1).Sub(current.Decimal.Div(list.Decimal)),
	)

	return pct.Round(0).IntPart(), true
}

// Decorate fills a product's derived sale fields from its price fields.
func Decorate(p *models.Product) {
	p.IsOnSale = IsOnSale(p.CurrentPrice, p.ListPrice)
	if pct, ok := DiscountPercent(p.CurrentPrice, p.ListPrice); ok {
		p.DiscountPct = pct
	} else {
		p.DiscountPct = 0
	}
}
