// Package money converts between decimal amounts and the integer minor
// units used by storage and the payment provider.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const minorExponent = 2

var hundred = decimal.NewFromInt(100)

// ToMinorUnits rounds amount*100 half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts cents into a two-decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorExponent)
}

// Format renders amount with exactly two decimals.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(minorExponent)
}

// FormatWithCurrency renders "12.50 USD".
func FormatWithCurrency(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", Format(amount), strings.ToUpper(currency))
}

// LineTotal is unitPrice*quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
