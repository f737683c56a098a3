// Package money converts between the API's decimal-string amounts and the
// int64 minor units used everywhere inside the system.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ParseCents parses a decimal string like "12.34" into minor units.
// More than two decimal places is rejected, as is any value whose cent
// count does not fit in int64.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := d.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	// IntPart wraps silently outside the int64 range.
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return cents.IntPart(), nil
}

// FormatCents renders minor units as a fixed two-decimal string.
func FormatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(hundred).StringFixed(2)
}
