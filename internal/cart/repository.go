package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// Line identifies a product (and optional variant) the buyer wants.
type Line struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Repository reads and consumes cart lines.
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

// RemoveConsumed deletes the user's cart rows for the given lines. Variant
// matching treats a nil variant as "no variant".
func (r *Repository) RemoveConsumed(ctx context.Context, userID uuid.UUID, lines []Line) (int64, error) {
	var removed int64
	for _, line := range lines {
		query := r.db.WithContext(ctx).
			Where("user_id = ? AND product_id = ?", userID, line.ProductID)
		if line.VariantID != nil {
			query = query.Where("variant_id = ?", *line.VariantID)
		} else {
			query = query.Where("variant_id IS NULL")
		}
		res := query.Delete(&models.CartItem{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	return removed, nil
}
