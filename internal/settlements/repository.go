package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Repository persists vendor settlements. Rows are unique per (order, store).
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

// InsertIfAbsent creates the rows that do not exist yet and reports how many
// were written.
func (r *Repository) InsertIfAbsent(ctx context.Context, rows []models.VendorSettlement) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "store_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorSettlement, error) {
	var rows []models.VendorSettlement
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("gross_cents DESC").
		Order("store_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorSettlement, error) {
	var row models.VendorSettlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkProcessing moves a pending settlement owned by vendorID to processing.
func (r *Repository) MarkProcessing(ctx context.Context, id, vendorID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorSettlement{}).
		Where("id = ? AND vendor_id = ? AND status = ?", id, vendorID, enums.SettlementStatusPending).
		Updates(map[string]any{
			"status":       enums.SettlementStatusProcessing,
			"requested_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPending cancels every still pending settlement of the order.
func (r *Repository) CancelPending(ctx context.Context, orderID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorSettlement{}).
		Where("order_id = ? AND status = ?", orderID, enums.SettlementStatusPending).
		Update("status", enums.SettlementStatusCancelled)
	return res.RowsAffected, res.Error
}

// ListForVendor pages through a vendor's settlements newest first.
func (r *Repository) ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters VendorFilters) (*pagination.Result[models.VendorSettlement], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Model(&models.VendorSettlement{}).Where("vendor_id = ?", vendorID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StoreID != nil {
		query = query.Where("store_id = ?", *filters.StoreID)
	}
	var rows []models.VendorSettlement
	if err := pagination.Keyset(query, cursor).
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	page := pagination.Trim(rows, params.Limit, func(s models.VendorSettlement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	return &page, nil
}

type statusTotals struct {
	Status     enums.SettlementStatus
	Count      int64
	Gross      int64
	Commission int64
	Cashback   int64
	Net        int64
}

func (r *Repository) totalsByStatus(ctx context.Context, vendorID uuid.UUID) ([]statusTotals, error) {
	var rows []statusTotals
	err := r.db.WithContext(ctx).
		Model(&models.VendorSettlement{}).
		Select(`status, COUNT(*) AS count,
			COALESCE(SUM(gross_cents), 0) AS gross,
			COALESCE(SUM(platform_commission_cents), 0) AS commission,
			COALESCE(SUM(cashback_cents), 0) AS cashback,
			COALESCE(SUM(net_payout_cents), 0) AS net`).
		Where("vendor_id = ?", vendorID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}
