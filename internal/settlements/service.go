package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/cashback"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/stores"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/money"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/pagination"
	"github.com/angelmondragon/orderledger/pkg/retry"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Policy holds the platform commission taken from every store's gross.
type Policy struct {
	CommissionPercent decimal.Decimal
	ConflictRetries   uint64
}

// VendorFilters narrows ListForVendor.
type VendorFilters struct {
	Status  *enums.SettlementStatus
	StoreID *uuid.UUID
}

// Earnings totals a vendor's settlements. Cancelled rows only show up in
// NetByStatus.
type Earnings struct {
	GrossCents      int64                            `json:"gross_cents"`
	CommissionCents int64                            `json:"commission_cents"`
	CashbackCents   int64                            `json:"cashback_cents"`
	NetPayoutCents  int64                            `json:"net_payout_cents"`
	SettlementCount int64                            `json:"settlement_count"`
	NetByStatus     map[enums.SettlementStatus]int64 `json:"net_by_status"`
}

// ServiceParams groups the settlement calculator dependencies.
type ServiceParams struct {
	Tx       txRunner
	Repo     *Repository
	Orders   *orders.Repository
	Stores   *stores.Repository
	Cashback *cashback.Repository
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Policy   Policy
}

// Service splits delivered orders into per-store vendor payouts.
type Service struct {
	tx       txRunner
	repo     *Repository
	orders   *orders.Repository
	stores   *stores.Repository
	cashback *cashback.Repository
	outbox   outboxPublisher
	logg     *logger.Logger
	policy   Policy
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("settlement repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Stores == nil:
		return nil, fmt.Errorf("stores repository required")
	case params.Cashback == nil:
		return nil, fmt.Errorf("cashback repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Policy.CommissionPercent.IsNegative() || params.Policy.CommissionPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("commission percent must be between 0 and 100")
	}
	return &Service{
		tx:       params.Tx,
		repo:     params.Repo,
		orders:   params.Orders,
		stores:   params.Stores,
		cashback: params.Cashback,
		outbox:   params.Outbox,
		logg:     params.Logger,
		policy:   params.Policy,
		now:      time.Now,
	}, nil
}

type storeShare struct {
	storeID uuid.UUID
	gross   int64
}

// ComputeForOrder creates one pending settlement per store of a delivered
// order. Running it again returns the rows created the first time.
func (s *Service) ComputeForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorSettlement, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		rows    []models.VendorSettlement
		created int64
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindForUpdate(ctx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.OrderStatus != enums.OrderStatusDelivered {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "settlement requires a delivered order, order is %s", order.OrderStatus)
		}

		repo := s.repo.WithTx(tx)
		existing, err := repo.ListByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlements")
		}
		if len(existing) > 0 {
			rows = existing
			return nil
		}

		built, err := s.build(ctx, tx, order)
		if err != nil {
			return err
		}
		created, err = repo.InsertIfAbsent(ctx, built)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert settlements")
		}
		rows, err = repo.ListByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlements")
		}
		if created == 0 {
			return nil
		}

		now := s.now().UTC()
		for _, row := range rows {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSettlementCreated,
				AggregateType: enums.AggregateSettlement,
				AggregateID:   row.ID,
				OccurredAt:    now,
				Data: payloads.SettlementCreatedEvent{
					SettlementID:   row.ID,
					OrderID:        row.OrderID,
					StoreID:        row.StoreID,
					VendorID:       row.VendorID,
					NetPayoutCents: row.NetPayoutCents,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement created")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created > 0 && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    orderID.String(),
			"settlements": len(rows),
		})
		s.logg.Info(logCtx, "settlements created")
	}
	return rows, nil
}

// build groups the order lines by store and splits commission and cashback.
func (s *Service) build(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.VendorSettlement, error) {
	var shares []storeShare
	index := make(map[uuid.UUID]int)
	for _, item := range order.Items {
		i, ok := index[item.StoreID]
		if !ok {
			i = len(shares)
			index[item.StoreID] = i
			shares = append(shares, storeShare{storeID: item.StoreID})
		}
		shares[i].gross += item.LineTotalCents
	}
	if len(shares) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no items to settle")
	}

	storeIDs := make([]uuid.UUID, len(shares))
	weights := make([]int64, len(shares))
	for i, share := range shares {
		storeIDs[i] = share.storeID
		weights[i] = share.gross
	}
	owners, err := s.stores.WithTx(tx).OwnersByStore(ctx, storeIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store owners")
	}

	cashbackCents, err := s.orderCashback(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	cashbackShares := money.ProRate(cashbackCents, weights)

	rows := make([]models.VendorSettlement, 0, len(shares))
	for i, share := range shares {
		owner, ok := owners[share.storeID]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "store %s has no owner", share.storeID)
		}
		commission := money.Percent(share.gross, s.policy.CommissionPercent)
		rows = append(rows, models.VendorSettlement{
			OrderID:                 order.ID,
			StoreID:                 share.storeID,
			VendorID:                owner,
			GrossCents:              share.gross,
			CommissionRate:          s.policy.CommissionPercent,
			PlatformCommissionCents: commission,
			CashbackCents:           cashbackShares[i],
			NetPayoutCents:          share.gross - commission - cashbackShares[i],
			Status:                  enums.SettlementStatusPending,
		})
	}
	return rows, nil
}

// orderCashback is the cashback the platform owes on the order. Expired and
// failed cashbacks cost nothing.
func (s *Service) orderCashback(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	row, err := s.cashback.WithTx(tx).FindByOrderID(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cashback")
	}
	if row == nil {
		return 0, nil
	}
	switch row.Status {
	case enums.CashbackStatusEligible, enums.CashbackStatusProcessed:
		return row.AmountCents, nil
	default:
		return 0, nil
	}
}

// RequestPayout hands a pending settlement to the payout rail.
func (s *Service) RequestPayout(ctx context.Context, settlementID, vendorID uuid.UUID) (*models.VendorSettlement, error) {
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}

	var result *models.VendorSettlement
	err := retry.OnConflict(ctx, retry.Policy{MaxRetries: s.policy.ConflictRetries}, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			row, err := repo.FindByID(ctx, settlementID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
			}
			if row.VendorID != vendorID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "settlement belongs to another vendor")
			}
			if row.Status != enums.SettlementStatusPending {
				return pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidStatusTransition,
					fmt.Sprintf("cannot request payout for a %s settlement", row.Status)).
					WithDetails(map[string]any{"current_status": row.Status})
			}

			now := s.now().UTC()
			ok, err := repo.MarkProcessing(ctx, row.ID, vendorID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request payout")
			}
			if !ok {
				return pkgerrors.Conflict("settlement changed concurrently")
			}
			row.Status = enums.SettlementStatusProcessing
			row.RequestedAt = &now

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutRequested,
				AggregateType: enums.AggregateSettlement,
				AggregateID:   row.ID,
				OccurredAt:    now,
				Data: payloads.PayoutRequestedEvent{
					SettlementID:   row.ID,
					VendorID:       vendorID,
					NetPayoutCents: row.NetPayoutCents,
					RequestedAt:    now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout requested")
			}
			result = row
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"settlement_id": settlementID.String(),
			"vendor_id":     vendorID.String(),
			"net":           money.Format(result.NetPayoutCents),
		})
		s.logg.Info(logCtx, "payout requested")
	}
	return result, nil
}

// CancelPendingForOrder cancels the order's unpaid settlements inside the
// caller's transaction. Settlements already processing are left alone.
func (s *Service) CancelPendingForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	n, err := s.repo.WithTx(tx).CancelPending(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel settlements")
	}
	return n, nil
}

func (s *Service) ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params, filters VendorFilters) (*pagination.Result[models.VendorSettlement], error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement status")
	}
	page, err := s.repo.ListForVendor(ctx, vendorID, params, filters)
	if err != nil {
		if params.Cursor != "" {
			if _, perr := pagination.ParseCursor(params.Cursor); perr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, perr, "invalid cursor")
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	return page, nil
}

// CalculateEarnings sums the vendor's settlements.
func (s *Service) CalculateEarnings(ctx context.Context, vendorID uuid.UUID) (*Earnings, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor identity missing")
	}
	totals, err := s.repo.totalsByStatus(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate settlements")
	}
	out := &Earnings{NetByStatus: make(map[enums.SettlementStatus]int64, len(totals))}
	for _, t := range totals {
		out.NetByStatus[t.Status] = t.Net
		if t.Status == enums.SettlementStatusCancelled {
			continue
		}
		out.GrossCents += t.Gross
		out.CommissionCents += t.Commission
		out.CashbackCents += t.Cashback
		out.NetPayoutCents += t.Net
		out.SettlementCount += t.Count
	}
	return out, nil
}
