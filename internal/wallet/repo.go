package wallet

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Repository manages wallets and their append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Ensure(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	IncrementBalance(ctx context.Context, walletID uuid.UUID, amount, cashbackDelta int64) error
	DecrementBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	InsertTransaction(ctx context.Context, row *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*pagination.Result[models.WalletTransaction], error)
	SumByType(ctx context.Context, walletID uuid.UUID) (credits, debits int64, err error)
	SumDebitsForReference(ctx context.Context, walletID uuid.UUID, refType enums.WalletReferenceType, refID uuid.UUID) (int64, error)
	SumCreditsForReference(ctx context.Context, walletID uuid.UUID, refType enums.WalletReferenceType, refID uuid.UUID) (int64, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOwners(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Ensure creates the wallet on first use. Concurrent first uses converge on
// the single row guarded by ux_wallets_user_id.
func (r *repository) Ensure(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	row := models.Wallet{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&row).Error; err != nil {
		return nil, err
	}
	return r.FindByUserID(ctx, userID)
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) IncrementBalance(ctx context.Context, walletID uuid.UUID, amount, cashbackDelta int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance_cents":        gorm.Expr("balance_cents + ?", amount),
			"total_cashback_cents": gorm.Expr("total_cashback_cents + ?", cashbackDelta),
		}).Error
}

// DecrementBalance spends amount only when the balance covers it.
func (r *repository) DecrementBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND balance_cents >= ?", walletID, amount).
		Updates(map[string]any{
			"balance_cents":     gorm.Expr("balance_cents - ?", amount),
			"total_spent_cents": gorm.Expr("total_spent_cents + ?", amount),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertTransaction(ctx context.Context, row *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*pagination.Result[models.WalletTransaction], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	var rows []models.WalletTransaction
	query := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID)
	if err := pagination.Keyset(query, cursor).
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	page := pagination.Trim(rows, params.Limit, func(t models.WalletTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &page, nil
}

func (r *repository) SumByType(ctx context.Context, walletID uuid.UUID) (int64, int64, error) {
	var sums []struct {
		Type  enums.WalletTransactionType
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("type, COALESCE(SUM(amount_cents), 0) AS total").
		Where("wallet_id = ?", walletID).
		Group("type").
		Scan(&sums).Error; err != nil {
		return 0, 0, err
	}
	var credits, debits int64
	for _, s := range sums {
		switch s.Type {
		case enums.WalletTransactionCredit:
			credits = s.Total
		case enums.WalletTransactionDebit:
			debits = s.Total
		}
	}
	return credits, debits, nil
}

func (r *repository) SumDebitsForReference(ctx context.Context, walletID uuid.UUID, refType enums.WalletReferenceType, refID uuid.UUID) (int64, error) {
	return r.sumForReference(ctx, walletID, enums.WalletTransactionDebit, refType, refID)
}

func (r *repository) SumCreditsForReference(ctx context.Context, walletID uuid.UUID, refType enums.WalletReferenceType, refID uuid.UUID) (int64, error) {
	return r.sumForReference(ctx, walletID, enums.WalletTransactionCredit, refType, refID)
}

func (r *repository) sumForReference(ctx context.Context, walletID uuid.UUID, kind enums.WalletTransactionType, refType enums.WalletReferenceType, refID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("wallet_id = ? AND type = ? AND reference_type = ? AND reference_id = ?",
			walletID, kind, refType, refID).
		Scan(&total).Error
	return total, err
}

// FindOrderForUpdate reads the order fields a wallet spend is checked
// against and holds the row lock until the transaction ends, so spends and
// cancellation of one order serialize.
func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		Select("id", "buyer_id", "total_amount_cents", "order_status").
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOwners pages through wallet owners in user id order, starting after
// the given id.
func (r *repository) ListOwners(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("user_id > ?", after).
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}
