// Package money keeps amounts in integer cents and routes every percentage
// through shopspring/decimal so rounding is half-up and reproducible.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns cents × percent / 100 rounded half-up to whole cents.
func Percent(cents int64, percent decimal.Decimal) int64 {
	if cents <= 0 || !percent.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(cents).Mul(percent).Div(hundred).Round(0).IntPart()
}

// ProRate splits total across weights proportionally. Shares are floored and
// the remainder is assigned to the largest weight (first on ties) so the
// result always sums to total.
func ProRate(total int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if total <= 0 || len(weights) == 0 {
		return shares
	}

	var sum int64
	largest := 0
	for i, w := range weights {
		sum += w
		if w > weights[largest] {
			largest = i
		}
	}
	if sum <= 0 {
		return shares
	}

	totalDec := decimal.NewFromInt(total)
	sumDec := decimal.NewFromInt(sum)
	var allocated int64
	for i, w := range weights {
		shares[i] = totalDec.Mul(decimal.NewFromInt(w)).Div(sumDec).Floor().IntPart()
		allocated += shares[i]
	}
	shares[largest] += total - allocated
	return shares
}

// Format renders cents as a fixed two-decimal string for logs and payloads.
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
