package orders

import (
	"fmt"

	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated:   {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:      {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered, enums.OrderStatusReturned},
	enums.OrderStatusDelivered: {enums.OrderStatusReturned},
}

// CanTransition reports whether the lifecycle table allows from -> to. Time
// based rules such as the return window are checked by the service.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses reachable from the given one.
func AllowedFrom(from enums.OrderStatus) []enums.OrderStatus {
	out := make([]enums.OrderStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.Business(
		pkgerrors.CodeStateConflict,
		pkgerrors.ReasonInvalidStatusTransition,
		fmt.Sprintf("cannot move order from %s to %s", from, to),
	).WithDetails(map[string]any{
		"current_status":   from,
		"requested_status": to,
		"allowed_statuses": AllowedFrom(from),
	})
}
