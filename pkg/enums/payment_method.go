package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how a buyer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodWallet PaymentMethod = "wallet"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodCard,
	PaymentMethodUPI,
	PaymentMethodWallet,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsCash reports whether payment is collected on delivery rather than
// confirmed by an external rail.
func (p PaymentMethod) IsCash() bool {
	return p == PaymentMethodCOD
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
