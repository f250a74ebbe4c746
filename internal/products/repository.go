package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// Repository owns every write to products.stock. Decrements are conditional
// so concurrent checkouts can never drive stock below zero.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs returns the products that exist, keyed by id. Missing ids are
// simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// DecrementStock removes qty units only if at least qty remain. It reports
// false, without error, when the guard rejected the update.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RestoreStock puts qty units back. It reports false when the product row
// no longer exists.
func (r *Repository) RestoreStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
