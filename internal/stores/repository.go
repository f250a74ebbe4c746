package stores

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// Repository answers store ownership questions for vendor authorization and
// settlement payee resolution.
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

// OwnersByStore maps each requested store to its owner. Unknown stores are
// absent from the result.
func (r *Repository) OwnersByStore(ctx context.Context, storeIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID, len(storeIDs))
	if len(storeIDs) == 0 {
		return out, nil
	}
	var rows []models.Store
	if err := r.db.WithContext(ctx).
		Select("id", "owner_user_id").
		Where("id IN ?", storeIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.OwnerUserID
	}
	return out, nil
}

// VendorOwnsAnyItem reports whether vendorID owns a store that supplied at
// least one line of the order.
func (r *Repository) VendorOwnsAnyItem(ctx context.Context, orderID, vendorID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Joins("JOIN stores ON stores.id = order_items.store_id").
		Where("order_items.order_id = ? AND stores.owner_user_id = ?", orderID, vendorID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// StoreIDsForVendor lists the stores owned by vendorID.
func (r *Repository) StoreIDsForVendor(ctx context.Context, vendorID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("owner_user_id = ?", vendorID).
		Pluck("id", &ids).Error
	return ids, err
}
