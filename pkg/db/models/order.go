package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/types"
)

// Order is immutable in its money fields once created. Status moves only
// through the lifecycle service, guarded by Version.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string                `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	BuyerID          uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null;index"`
	SubtotalCents    int64                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents    int64                 `gorm:"column:discount_cents;not null;default:0"`
	TotalAmountCents int64                 `gorm:"column:total_amount_cents;not null;check:chk_orders_total,total_amount_cents >= 0"`
	CouponID         *uuid.UUID            `gorm:"column:coupon_id;type:uuid"`
	CouponCode       *string               `gorm:"column:coupon_code"`
	ShippingAddress  types.AddressSnapshot `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress   types.AddressSnapshot `gorm:"column:billing_address;type:jsonb;not null"`
	PaymentMethod    enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	PaymentStatus    enums.PaymentStatus   `gorm:"column:payment_status;not null"`
	PaymentReference *string               `gorm:"column:payment_reference"`
	OrderStatus      enums.OrderStatus     `gorm:"column:order_status;not null;index"`
	CashbackGiven    bool                  `gorm:"column:cashback_given;not null;default:false"`
	Notes            *string               `gorm:"column:notes"`
	CancelReason     *string               `gorm:"column:cancel_reason"`
	Version          int                   `gorm:"column:version;not null;default:1"`
	PaidAt           *time.Time            `gorm:"column:paid_at"`
	ShippedAt        *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time            `gorm:"column:delivered_at"`
	CancelledAt      *time.Time            `gorm:"column:cancelled_at"`
	ReturnedAt       *time.Time            `gorm:"column:returned_at"`
	Items            []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// ItemsGrossCents sums snapshot line totals, before any discount.
func (o Order) ItemsGrossCents() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.LineTotalCents
	}
	return sum
}

// OrderItem snapshots the product price at order time.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	StoreID        uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`
	ProductTitle   string    `gorm:"column:product_title;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null;check:chk_order_items_quantity,quantity > 0"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// OrderStatusHistory is the append-only audit of status changes.
type OrderStatusHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;not null"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	ActorRole  enums.ActorRole    `gorm:"column:actor_role;not null"`
	Notes      *string            `gorm:"column:notes"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
