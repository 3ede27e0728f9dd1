// Package money holds the currency conversions used between the storefront
// (USD order totals) and VNPay (integer VND minor units).
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToVND converts a USD amount to whole VND at the given rate.
func ToVND(usd, rate decimal.Decimal) decimal.Decimal {
	return usd.Mul(rate).Round(0)
}

// ToMinorUnits renders a VND amount the way VNPay expects vnp_Amount:
// the amount multiplied by 100, as an integer string.
func ToMinorUnits(amount decimal.Decimal) string {
	return amount.Mul(hundred).Round(0).StringFixed(0)
}

// FromMinorUnits parses a vnp_Amount value back into VND.
func FromMinorUnits(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse minor units %q: %w", s, err)
	}
	return d.Div(hundred), nil
}

// FormatVND renders an amount with dot thousand separators and the currency
// suffix, e.g. "500.000 ₫".
func FormatVND(amount decimal.Decimal) string {
	n := amount.Round(0).IntPart()
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " ₫"
}

// FormatUSD renders a USD amount with two decimals.
func FormatUSD(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}
