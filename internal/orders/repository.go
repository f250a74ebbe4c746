package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Repository persists orders, their items and the status audit trail.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the order and its items. The insert runs under a savepoint
// so an order number collision leaves the surrounding transaction usable.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(order).Error
	})
}

// FindByID loads an order with its items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// FindForUpdate is FindByID holding the order row lock until the
// transaction ends.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, db.ForUpdate(r.db.WithContext(ctx)), id)
}

func (r *Repository) find(ctx context.Context, query *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := query.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at ASC").
		Order("id ASC").
		Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateIfVersion applies updates only when the stored version still matches
// and bumps it. It reports false when another writer got there first.
func (r *Repository) UpdateIfVersion(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCashbackGiven flips cashback_given once. It reports false when the flag
// was already set.
func (r *Repository) MarkCashbackGiven(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND cashback_given = ?", id, false).
		Update("cashback_given", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AppendHistory records one status change.
func (r *Repository) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListHistory returns the audit trail oldest first.
func (r *Repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListByBuyer pages through a buyer's orders newest first. Items are not
// loaded.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*pagination.Result[models.Order], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID)
	if filters.Status != nil {
		query = query.Where("order_status = ?", *filters.Status)
	}
	var rows []models.Order
	if err := pagination.Keyset(query, cursor).
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	page := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}
