package coupons

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// Repository reads coupons and bumps usage under the usage_limit guard.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// NormalizeCode is the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FindByCode looks the code up case-insensitively.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", NormalizeCode(code)).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// IncrementUsage consumes one redemption if the limit allows it. It reports
// false when the coupon is exhausted or was deactivated since it was read.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND is_active = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", id, true).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
