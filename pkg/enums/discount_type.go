package enums

import (
	"fmt"
	"strings"
)

// DiscountType selects how a coupon's discount_value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (d DiscountType) String() string {
	return string(d)
}

func (d DiscountType) IsValid() bool {
	return d == DiscountTypePercentage || d == DiscountTypeFixed
}

func ParseDiscountType(value string) (DiscountType, error) {
	candidate := DiscountType(strings.ToLower(strings.TrimSpace(value)))
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid discount type %q", value)
	}
	return candidate, nil
}
