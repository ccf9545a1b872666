// Package utils provides small shared helpers.
package utils

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatPrice formats a dollar price with thousands separators, keeping two
// decimal places.
func FormatPrice(price float64) string {
	return "$" + humanize.FormatFloat("#,###.##", price)
}

// FormatPercent formats a ratio as a signed percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%+.2f%%", ratio*100)
}

// PercentFrom returns the percentage move from base to price, or 0 when base
// is not usable.
func PercentFrom(base, price float64) float64 {
	if base <= 0 {
		return 0
	}
	return (price - base) / base
}
