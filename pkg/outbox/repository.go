package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
)

// maxErrorLength keeps last_error readable in dashboards.
const maxErrorLength = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert reports whether a new row was written; a dedupe hit returns false.
func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, event *models.OutboxEvent) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FetchUnpublished claims up to limit pending rows below the attempt ceiling.
// On postgres the rows stay locked for the life of tx so parallel
// dispatchers never pick the same event.
func (r *Repository) FetchUnpublished(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		tx = r.db
	}
	query := dbpkg.ForUpdateSkipLocked(tx.WithContext(ctx)).
		Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": at,
			"last_error":   nil,
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		tx = r.db
	}
	msg := cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminal parks a row that must not be retried by raising its attempt
// count to the ceiling. It stays unpublished and is reported by CountStuck.
func (r *Repository) MarkTerminal(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, maxAttempts int) error {
	if tx == nil {
		tx = r.db
	}
	msg := "terminal: " + cause.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return tx.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": maxAttempts,
		}).Error
}

// CountStuck returns rows that exhausted their attempts without publishing.
func (r *Repository) CountStuck(ctx context.Context, maxAttempts int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("published_at IS NULL AND attempt_count >= ?", maxAttempts).
		Count(&count).Error
	return count, err
}

// DeletePublishedBefore removes published rows older than cutoff.
// Unpublished rows are never deleted, including terminal ones.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// FindByAggregate is used by tests and admin tooling to inspect queued events.
func (r *Repository) FindByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
