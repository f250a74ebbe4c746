package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Coupon codes are stored upper-case. DiscountValue is a percent for
// percentage coupons and cents for fixed ones.
type Coupon struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code                 string             `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	DiscountType         enums.DiscountType `gorm:"column:discount_type;not null"`
	DiscountValue        decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinimumOrderCents    int64              `gorm:"column:minimum_order_cents;not null;default:0"`
	MaximumDiscountCents *int64             `gorm:"column:maximum_discount_cents"`
	UsageLimit           *int               `gorm:"column:usage_limit"`
	UsageCount           int                `gorm:"column:usage_count;not null;default:0"`
	ValidFrom            time.Time          `gorm:"column:valid_from;not null"`
	ValidUntil           *time.Time         `gorm:"column:valid_until"`
	IsActive             bool               `gorm:"column:is_active;not null"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
