package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks an order through fulfilment.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusReturned  OrderStatus = "returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no forward transition leaves this status other
// than the delivered-to-returned window.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus. Matching is
// case-insensitive so "DELIVERED" and "delivered" are equivalent.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validOrderStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
