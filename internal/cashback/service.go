package cashback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/wallet"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/money"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/retry"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletCreditor interface {
	CreditTx(ctx context.Context, tx *gorm.DB, input wallet.CreditInput) (*models.WalletTransaction, error)
}

type balanceReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// Policy holds the cashback rate and how long an eligible cashback lives.
type Policy struct {
	Percent         decimal.Decimal
	Expiry          time.Duration
	ConflictRetries uint64
}

// Stats summarizes a user's cashback history.
type Stats struct {
	TotalEarnedCents    int64 `json:"total_earned_cents"`
	PendingCents        int64 `json:"pending_cents"`
	ExpiredCents        int64 `json:"expired_cents"`
	ProcessedCount      int64 `json:"processed_count"`
	PendingCount        int64 `json:"pending_count"`
	ExpiredCount        int64 `json:"expired_count"`
	FailedCount         int64 `json:"failed_count"`
	WalletCashbackCents int64 `json:"wallet_cashback_cents"`
}

// ServiceParams groups the cashback engine dependencies.
type ServiceParams struct {
	Tx     txRunner
	Repo   *Repository
	Orders *orders.Repository
	Wallet interface {
		walletCreditor
		balanceReader
	}
	Outbox outboxPublisher
	Logger *logger.Logger
	Policy Policy
}

// Service credits delivered orders' cashback exactly once.
type Service struct {
	tx     txRunner
	repo   *Repository
	orders *orders.Repository
	wallet walletCreditor
	reader balanceReader
	outbox outboxPublisher
	logg   *logger.Logger
	policy Policy
	now    func() time.Time
}

// NewService wires the cashback engine.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("cashback repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Policy.Percent.IsNegative() {
		return nil, fmt.Errorf("cashback percent must not be negative")
	}
	return &Service{
		tx:     params.Tx,
		repo:   params.Repo,
		orders: params.Orders,
		wallet: params.Wallet,
		reader: params.Wallet,
		outbox: params.Outbox,
		logg:   params.Logger,
		policy: params.Policy,
		now:    time.Now,
	}, nil
}

// ProcessForOrder grants the cashback of a delivered order. The eligible
// record is committed first so a failed credit leaves it pending for the
// next attempt. Calling it again returns the existing record without
// crediting twice. A nil cashback with a nil error means the order earns
// nothing.
func (s *Service) ProcessForOrder(ctx context.Context, orderID uuid.UUID) (*models.Cashback, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var record *models.Cashback
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = s.ensureRecord(ctx, tx, orderID)
		return err
	}); err != nil {
		return nil, err
	}
	if record == nil || record.Status != enums.CashbackStatusEligible {
		return record, nil
	}

	var (
		result   *models.Cashback
		credited bool
	)
	err := retry.OnConflict(ctx, retry.Policy{MaxRetries: s.policy.ConflictRetries}, func(ctx context.Context) error {
		credited = false
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			result, credited, err = s.credit(ctx, tx, orderID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if credited && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    orderID.String(),
			"cashback_id": result.ID.String(),
			"amount":      money.Format(result.AmountCents),
		})
		s.logg.Info(logCtx, "cashback credited")
	}
	return result, nil
}

func loadDelivered(ctx context.Context, repo *orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindForUpdate(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.OrderStatus != enums.OrderStatusDelivered {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cashback requires a delivered order, order is %s", order.OrderStatus)
	}
	return order, nil
}

// ensureRecord creates the eligible cashback for the order if it has none.
func (s *Service) ensureRecord(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Cashback, error) {
	order, err := loadDelivered(ctx, s.orders.WithTx(tx), orderID)
	if err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cashback")
	}
	if existing != nil || order.CashbackGiven {
		return existing, nil
	}

	amount := money.Percent(order.TotalAmountCents, s.policy.Percent)
	if amount <= 0 {
		return nil, nil
	}
	row := &models.Cashback{
		OrderID:     order.ID,
		UserID:      order.BuyerID,
		AmountCents: amount,
		Percentage:  s.policy.Percent,
		Status:      enums.CashbackStatusEligible,
		ExpiresAt:   s.now().UTC().Add(s.policy.Expiry),
	}
	if _, err := repo.InsertIfAbsent(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert cashback")
	}
	existing, err = repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cashback")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cashback missing after insert")
	}
	return existing, nil
}

// credit moves an eligible cashback into the wallet, or expires it when its
// deadline has passed.
func (s *Service) credit(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Cashback, bool, error) {
	orderRepo := s.orders.WithTx(tx)
	order, err := loadDelivered(ctx, orderRepo, orderID)
	if err != nil {
		return nil, false, err
	}
	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cashback")
	}
	if existing == nil || order.CashbackGiven || existing.Status != enums.CashbackStatusEligible {
		return existing, false, nil
	}

	now := s.now().UTC()
	if now.After(existing.ExpiresAt) {
		ok, err := repo.MarkExpired(ctx, existing.ID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire cashback")
		}
		if !ok {
			return nil, false, pkgerrors.Conflict("cashback changed concurrently")
		}
		existing.Status = enums.CashbackStatusExpired
		return existing, false, nil
	}

	cashbackID := existing.ID
	walletTx, err := s.wallet.CreditTx(ctx, tx, wallet.CreditInput{
		UserID:        existing.UserID,
		AmountCents:   existing.AmountCents,
		Description:   "Cashback for order " + order.OrderNumber,
		ReferenceType: enums.WalletReferenceCashback,
		ReferenceID:   &cashbackID,
	})
	if err != nil {
		return nil, false, err
	}
	ok, err := repo.MarkProcessed(ctx, existing.ID, walletTx.ID, now)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cashback processed")
	}
	if !ok {
		return nil, false, pkgerrors.Conflict("cashback changed concurrently")
	}
	ok, err = orderRepo.MarkCashbackGiven(ctx, order.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order cashback")
	}
	if !ok {
		return nil, false, pkgerrors.Conflict("order cashback flag changed concurrently")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCashbackProcessed,
		AggregateType: enums.AggregateCashback,
		AggregateID:   existing.ID,
		OccurredAt:    now,
		Data: payloads.CashbackProcessedEvent{
			CashbackID:          existing.ID,
			OrderID:             order.ID,
			UserID:              existing.UserID,
			AmountCents:         existing.AmountCents,
			WalletTransactionID: walletTx.ID,
		},
	}); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit cashback processed")
	}

	walletTxID := walletTx.ID
	existing.Status = enums.CashbackStatusProcessed
	existing.WalletTransactionID = &walletTxID
	existing.ProcessedAt = &now
	return existing, true, nil
}

// ExpireStale expires every eligible cashback past its deadline. Expired
// rows are never reinstated.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire cashbacks")
	}
	if n > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "expired", n), "stale cashbacks expired")
	}
	return n, nil
}

// MarkFailed parks an eligible cashback that cannot be credited.
func (s *Service) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	ok, err := s.repo.MarkFailed(ctx, orderID, reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cashback failed")
	}
	if ok && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "reason": reason})
		s.logg.Warn(logCtx, "cashback marked failed")
	}
	return nil
}

// GetPending lists cashbacks the user can still receive.
func (s *Service) GetPending(ctx context.Context, userID uuid.UUID) ([]models.Cashback, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListPending(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending cashback")
	}
	return rows, nil
}

// GetStats aggregates the user's cashback by status.
func (s *Service) GetStats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	totals, err := s.repo.totalsByStatus(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate cashback")
	}
	stats := &Stats{}
	for _, t := range totals {
		switch t.Status {
		case enums.CashbackStatusProcessed:
			stats.TotalEarnedCents = t.Total
			stats.ProcessedCount = t.Count
		case enums.CashbackStatusEligible:
			stats.PendingCents = t.Total
			stats.PendingCount = t.Count
		case enums.CashbackStatusExpired:
			stats.ExpiredCents = t.Total
			stats.ExpiredCount = t.Count
		case enums.CashbackStatusFailed:
			stats.FailedCount = t.Count
		}
	}
	balance, err := s.reader.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.WalletCashbackCents = balance.TotalCashbackCents
	return stats, nil
}
