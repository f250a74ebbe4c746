package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// VendorSettlement is one payout row per (order, store).
type VendorSettlement struct {
	ID                      uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                 uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_vendor_settlements_order_store"`
	StoreID                 uuid.UUID              `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_vendor_settlements_order_store"`
	VendorID                uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null;index"`
	GrossCents              int64                  `gorm:"column:gross_cents;not null"`
	CommissionRate          decimal.Decimal        `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	PlatformCommissionCents int64                  `gorm:"column:platform_commission_cents;not null"`
	CashbackCents           int64                  `gorm:"column:cashback_cents;not null;default:0"`
	NetPayoutCents          int64                  `gorm:"column:net_payout_cents;not null"`
	Status                  enums.SettlementStatus `gorm:"column:status;not null;index"`
	RequestedAt             *time.Time             `gorm:"column:requested_at"`
	PaidAt                  *time.Time             `gorm:"column:paid_at"`
	CreatedAt               time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *VendorSettlement) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
