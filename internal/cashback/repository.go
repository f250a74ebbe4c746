package cashback

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Repository persists cashback rows. Every status change is conditional on
// the row still being eligible.
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

// InsertIfAbsent creates the order's cashback unless one exists already.
func (r *Repository) InsertIfAbsent(ctx context.Context, row *models.Cashback) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByOrderID returns nil without error when the order has no cashback.
func (r *Repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Cashback, error) {
	var row models.Cashback
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, id, walletTxID uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":                enums.CashbackStatusProcessed,
		"wallet_transaction_id": walletTxID,
		"processed_at":          at,
	})
}

func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, map[string]any{"status": enums.CashbackStatusExpired})
}

func (r *Repository) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cashback{}).
		Where("order_id = ? AND status = ?", orderID, enums.CashbackStatusEligible).
		Updates(map[string]any{"status": enums.CashbackStatusFailed, "failure_reason": reason})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cashback{}).
		Where("id = ? AND status = ?", id, enums.CashbackStatusEligible).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireBefore moves every eligible row whose expiry has passed to expired.
func (r *Repository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cashback{}).
		Where("status = ? AND expires_at < ?", enums.CashbackStatusEligible, now).
		Update("status", enums.CashbackStatusExpired)
	return res.RowsAffected, res.Error
}

// ListPending returns the user's eligible, unexpired cashbacks soonest
// expiry first.
func (r *Repository) ListPending(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.Cashback, error) {
	var rows []models.Cashback
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND expires_at >= ?", userID, enums.CashbackStatusEligible, now).
		Order("expires_at ASC").
		Find(&rows).Error
	return rows, err
}

type statusTotal struct {
	Status enums.CashbackStatus
	Count  int64
	Total  int64
}

func (r *Repository) totalsByStatus(ctx context.Context, userID uuid.UUID) ([]statusTotal, error) {
	var rows []statusTotal
	err := r.db.WithContext(ctx).
		Model(&models.Cashback{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount_cents), 0) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}
