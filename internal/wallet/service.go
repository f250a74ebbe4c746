package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/money"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreditInput describes money entering a wallet.
type CreditInput struct {
	UserID        uuid.UUID
	AmountCents   int64
	Description   string
	ReferenceType enums.WalletReferenceType
	ReferenceID   *uuid.UUID
}

// DebitInput describes money leaving a wallet.
type DebitInput struct {
	UserID        uuid.UUID
	AmountCents   int64
	Description   string
	ReferenceType enums.WalletReferenceType
	ReferenceID   *uuid.UUID
}

// UseBalanceInput applies wallet funds toward one of the user's orders.
type UseBalanceInput struct {
	UserID      uuid.UUID `json:"-"`
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
}

// Reconciliation compares the cached balance with a replay of the log.
type Reconciliation struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	BalanceCents  int64     `json:"balance_cents"`
	CreditsCents  int64     `json:"credits_cents"`
	DebitsCents   int64     `json:"debits_cents"`
	ReplayedCents int64     `json:"replayed_cents"`
	DriftCents    int64     `json:"drift_cents"`
}

// ServiceParams groups wallet service dependencies.
type ServiceParams struct {
	Tx     txRunner
	Repo   Repository
	Outbox outboxPublisher
	Logger *logger.Logger
}

// Service is the only writer of wallet balances.
type Service struct {
	tx     txRunner
	repo   Repository
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires a wallet service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Service{tx: params.Tx, repo: params.Repo, outbox: params.Outbox, logg: params.Logger}, nil
}

// Credit adds funds in its own transaction.
func (s *Service) Credit(ctx context.Context, input CreditInput) (*models.WalletTransaction, error) {
	var row *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		row, err = s.CreditTx(ctx, tx, input)
		return err
	})
	return row, err
}

// CreditTx adds funds inside the caller's transaction. Cashback credits also
// grow the wallet's lifetime cashback total.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input.UserID, input.AmountCents, input.ReferenceType); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.Ensure(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}

	var cashbackDelta int64
	if input.ReferenceType == enums.WalletReferenceCashback {
		cashbackDelta = input.AmountCents
	}
	if err := repo.IncrementBalance(ctx, wallet.ID, input.AmountCents, cashbackDelta); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
	}
	row, err := s.appendTransaction(ctx, repo, wallet.ID, enums.WalletTransactionCredit, input.AmountCents, input.Description, input.ReferenceType, input.ReferenceID)
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"wallet_id":      wallet.ID.String(),
			"user_id":        input.UserID.String(),
			"amount":         money.Format(input.AmountCents),
			"reference_type": input.ReferenceType,
		})
		s.logg.Info(logCtx, "wallet credited")
	}
	return row, nil
}

// DebitTx spends funds inside the caller's transaction. It fails with
// InsufficientBalance when the balance does not cover the amount.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input.UserID, input.AmountCents, input.ReferenceType); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.Ensure(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	ok, err := repo.DecrementBalance(ctx, wallet.ID, input.AmountCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
	}
	if !ok {
		return nil, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonInsufficientBalance, "wallet balance is insufficient").
			WithDetails(map[string]any{
				"available_cents": wallet.BalanceCents,
				"requested_cents": input.AmountCents,
			})
	}
	return s.appendTransaction(ctx, repo, wallet.ID, enums.WalletTransactionDebit, input.AmountCents, input.Description, input.ReferenceType, input.ReferenceID)
}

// UseBalance spends wallet funds toward an order the user owns. The total
// spent against one order never exceeds the order total.
func (s *Service) UseBalance(ctx context.Context, input UseBalanceInput) (*models.WalletTransaction, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := validateMovement(input.UserID, input.AmountCents, enums.WalletReferenceOrder); err != nil {
		return nil, err
	}
	var row *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.BuyerID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.OrderStatus == enums.OrderStatusCancelled || order.OrderStatus == enums.OrderStatusReturned {
			return pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidStatusTransition,
				fmt.Sprintf("cannot pay a %s order", order.OrderStatus))
		}

		wallet, err := repo.Ensure(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
		}
		spent, err := repo.SumDebitsForReference(ctx, wallet.ID, enums.WalletReferenceOrder, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum order debits")
		}
		if spent+input.AmountCents > order.TotalAmountCents {
			return pkgerrors.Business(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAmount, "amount exceeds order total").
				WithDetails(map[string]any{
					"order_total_cents":   order.TotalAmountCents,
					"already_spent_cents": spent,
					"requested_cents":     input.AmountCents,
				})
		}

		orderID := order.ID
		row, err = s.DebitTx(ctx, tx, DebitInput{
			UserID:        input.UserID,
			AmountCents:   input.AmountCents,
			Description:   "Payment toward order",
			ReferenceType: enums.WalletReferenceOrder,
			ReferenceID:   &orderID,
		})
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletDebited,
			AggregateType: enums.AggregateWallet,
			AggregateID:   wallet.ID,
			DedupeKey:     row.ID.String(),
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.ActorRoleBuyer)},
			Data: payloads.WalletDebitedEvent{
				WalletID:      wallet.ID,
				UserID:        input.UserID,
				OrderID:       order.ID,
				AmountCents:   input.AmountCents,
				TransactionID: row.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// RefundOrderTx credits back what the buyer's wallet paid toward orderID and
// has not been refunded yet. Callers hold the order row lock.
func (s *Service) RefundOrderTx(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (int64, error) {
	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	spent, err := repo.SumDebitsForReference(ctx, wallet.ID, enums.WalletReferenceOrder, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum order debits")
	}
	refunded, err := repo.SumCreditsForReference(ctx, wallet.ID, enums.WalletReferenceOrder, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum order refunds")
	}
	owed := spent - refunded
	if owed <= 0 {
		return 0, nil
	}
	if _, err := s.CreditTx(ctx, tx, CreditInput{
		UserID:        userID,
		AmountCents:   owed,
		Description:   "Refund for cancelled order",
		ReferenceType: enums.WalletReferenceOrder,
		ReferenceID:   &orderID,
	}); err != nil {
		return 0, err
	}
	return owed, nil
}

func (s *Service) appendTransaction(
	ctx context.Context,
	repo Repository,
	walletID uuid.UUID,
	kind enums.WalletTransactionType,
	amount int64,
	description string,
	refType enums.WalletReferenceType,
	refID *uuid.UUID,
) (*models.WalletTransaction, error) {
	wallet, err := repo.FindByID(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload wallet")
	}
	ref := refType
	row := &models.WalletTransaction{
		WalletID:          walletID,
		Type:              kind,
		AmountCents:       amount,
		BalanceAfterCents: wallet.BalanceCents,
		Description:       description,
		ReferenceType:     &ref,
		ReferenceID:       refID,
	}
	if err := repo.InsertTransaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet transaction")
	}
	return row, nil
}

// GetBalance returns the user's wallet, creating the zero-balance wallet on
// first access.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	wallet, err := s.repo.Ensure(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	return wallet, nil
}

// ListTransactions pages through the wallet log newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Result[models.WalletTransaction], error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &pagination.Result[models.WalletTransaction]{Items: []models.WalletTransaction{}}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	page, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return page, nil
}

// Reconcile replays the log. A mismatch is returned as a WalletDrift error
// alongside the report.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Reconciliation{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	credits, debits, err := s.repo.SumByType(ctx, wallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum wallet transactions")
	}
	report := &Reconciliation{
		WalletID:      wallet.ID,
		BalanceCents:  wallet.BalanceCents,
		CreditsCents:  credits,
		DebitsCents:   debits,
		ReplayedCents: credits - debits,
	}
	report.DriftCents = report.BalanceCents - report.ReplayedCents
	if report.DriftCents != 0 {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"wallet_id":   wallet.ID.String(),
				"drift_cents": report.DriftCents,
			})
			s.logg.Warn(logCtx, "wallet balance drift detected")
		}
		return report, pkgerrors.Business(pkgerrors.CodeConflict, pkgerrors.ReasonWalletDrift, "wallet balance does not match its transactions").
			WithDetails(report)
	}
	return report, nil
}

// ListWalletOwners returns up to limit wallet owners after the given user id.
func (s *Service) ListWalletOwners(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListOwners(ctx, after, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet owners")
	}
	return ids, nil
}

func validateMovement(userID uuid.UUID, amount int64, refType enums.WalletReferenceType) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if amount <= 0 {
		return pkgerrors.Business(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAmount, "amount must be positive").
			WithDetails(map[string]any{"amount_cents": amount})
	}
	if !refType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid reference type %q", refType)
	}
	return nil
}
