package enums

import "fmt"

// OutboxAggregateType names the row an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder      OutboxAggregateType = "order"
	AggregateCashback   OutboxAggregateType = "cashback"
	AggregateSettlement OutboxAggregateType = "settlement"
	AggregateWallet     OutboxAggregateType = "wallet"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCashback,
	AggregateSettlement,
	AggregateWallet,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType identifies the payload schema of an outbox event.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderDelivered     OutboxEventType = "order_delivered"
	EventOrderReturned      OutboxEventType = "order_returned"
	EventCashbackProcessed  OutboxEventType = "cashback_processed"
	EventSettlementCreated  OutboxEventType = "settlement_created"
	EventPayoutRequested    OutboxEventType = "payout_requested"
	EventWalletDebited      OutboxEventType = "wallet_debited"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderPaid,
	EventOrderCancelled,
	EventOrderDelivered,
	EventOrderReturned,
	EventCashbackProcessed,
	EventSettlementCreated,
	EventPayoutRequested,
	EventWalletDebited,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
