package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// OrderCreatedEvent is emitted once per order at creation.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	BuyerID          uuid.UUID           `json:"buyer_id"`
	StoreIDs         []uuid.UUID         `json:"store_ids"`
	SubtotalCents    int64               `json:"subtotal_cents"`
	DiscountCents    int64               `json:"discount_cents"`
	TotalAmountCents int64               `json:"total_amount_cents"`
	CouponCode       *string             `json:"coupon_code,omitempty"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
}

// OrderStatusChangedEvent is emitted for every applied transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ActorRole  enums.ActorRole   `json:"actor_role"`
	Notes      *string           `json:"notes,omitempty"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// OrderDeliveredEvent drives the cashback and settlement side effects.
type OrderDeliveredEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	DeliveredAt      time.Time `json:"delivered_at"`
}

// OrderCancelledEvent reports a cancellation, the stock it released and the
// wallet funds returned to the buyer.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	FromStatus    enums.OrderStatus   `json:"from_status"`
	Reason        string              `json:"reason,omitempty"`
	RestoredUnits int                 `json:"restored_units"`
	WalletRefund  int64               `json:"wallet_refund_cents"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	CancelledAt   time.Time           `json:"cancelled_at"`
}

// CashbackProcessedEvent is emitted when a cashback lands in a wallet.
type CashbackProcessedEvent struct {
	CashbackID          uuid.UUID `json:"cashback_id"`
	OrderID             uuid.UUID `json:"order_id"`
	UserID              uuid.UUID `json:"user_id"`
	AmountCents         int64     `json:"amount_cents"`
	WalletTransactionID uuid.UUID `json:"wallet_transaction_id"`
}

// SettlementCreatedEvent is emitted per (order, store) payout row.
type SettlementCreatedEvent struct {
	SettlementID   uuid.UUID `json:"settlement_id"`
	OrderID        uuid.UUID `json:"order_id"`
	StoreID        uuid.UUID `json:"store_id"`
	VendorID       uuid.UUID `json:"vendor_id"`
	NetPayoutCents int64     `json:"net_payout_cents"`
}

// PayoutRequestedEvent hands a settlement to the external payout rail.
type PayoutRequestedEvent struct {
	SettlementID   uuid.UUID `json:"settlement_id"`
	VendorID       uuid.UUID `json:"vendor_id"`
	NetPayoutCents int64     `json:"net_payout_cents"`
	RequestedAt    time.Time `json:"requested_at"`
}

// WalletDebitedEvent records a wallet spend against an order.
type WalletDebitedEvent struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	UserID        uuid.UUID `json:"user_id"`
	OrderID       uuid.UUID `json:"order_id"`
	AmountCents   int64     `json:"amount_cents"`
	TransactionID uuid.UUID `json:"transaction_id"`
}
