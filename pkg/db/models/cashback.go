package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Cashback is at most one per order.
type Cashback struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_cashbacks_order_id"`
	UserID              uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	AmountCents         int64                `gorm:"column:amount_cents;not null"`
	Percentage          decimal.Decimal      `gorm:"column:percentage;type:numeric(5,2);not null"`
	Status              enums.CashbackStatus `gorm:"column:status;not null;index"`
	ExpiresAt           time.Time            `gorm:"column:expires_at;not null"`
	WalletTransactionID *uuid.UUID           `gorm:"column:wallet_transaction_id;type:uuid"`
	ProcessedAt         *time.Time           `gorm:"column:processed_at"`
	FailureReason       *string              `gorm:"column:failure_reason"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cashback) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
