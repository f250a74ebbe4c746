package wallet

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/pagination"
	"github.com/angelmondragon/orderledger/pkg/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := NewService(ServiceParams{
		Tx:     client,
		Repo:   NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return svc, conn
}

func seedOrder(t *testing.T, conn *gorm.DB, buyer uuid.UUID, total int64, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:      "ORD-" + uuid.NewString()[:10],
		BuyerID:          buyer,
		SubtotalCents:    total,
		TotalAmountCents: total,
		ShippingAddress:  types.AddressSnapshot{},
		BillingAddress:   types.AddressSnapshot{},
		PaymentMethod:    enums.PaymentMethodWallet,
		PaymentStatus:    enums.PaymentStatusPending,
		OrderStatus:      status,
		Version:          1,
	}
	require.NoError(t, conn.Create(&order).Error)
	return order
}

func TestCreditCreatesWalletLazily(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	empty, err := svc.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, empty.BalanceCents)
	assert.NotEqual(t, uuid.Nil, empty.ID)
	_, err = svc.GetBalance(ctx, user)
	require.NoError(t, err)
	var wallets int64
	require.NoError(t, conn.Model(&models.Wallet{}).Count(&wallets).Error)
	assert.EqualValues(t, 1, wallets, "first access creates exactly one wallet")

	ref := uuid.New()
	row, err := svc.Credit(ctx, CreditInput{
		UserID: user, AmountCents: 900, Description: "Cashback",
		ReferenceType: enums.WalletReferenceCashback, ReferenceID: &ref,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 900, row.BalanceAfterCents)
	assert.Equal(t, enums.WalletTransactionCredit, row.Type)

	_, err = svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 100, ReferenceType: enums.WalletReferenceAdjustment})
	require.NoError(t, err)

	wallet, err := svc.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, wallet.BalanceCents)
	assert.EqualValues(t, 900, wallet.TotalCashbackCents)
	require.NoError(t, conn.Model(&models.Wallet{}).Count(&wallets).Error)
	assert.EqualValues(t, 1, wallets)
}

func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	svc, _ := newTestService(t)
	for _, amount := range []int64{0, -5} {
		_, err := svc.Credit(context.Background(), CreditInput{UserID: uuid.New(), AmountCents: amount, ReferenceType: enums.WalletReferenceAdjustment})
		require.Error(t, err)
		assert.Equal(t, pkgerrors.ReasonInvalidAmount, pkgerrors.ReasonOf(err))
	}
}

func TestUseBalance(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	order := seedOrder(t, conn, user, 1500, enums.OrderStatusCreated)

	_, err := svc.UseBalance(ctx, UseBalanceInput{UserID: user, OrderID: order.ID, AmountCents: 500})
	assert.Equal(t, pkgerrors.ReasonInsufficientBalance, pkgerrors.ReasonOf(err))

	_, err = svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 2000, ReferenceType: enums.WalletReferenceAdjustment})
	require.NoError(t, err)

	row, err := svc.UseBalance(ctx, UseBalanceInput{UserID: user, OrderID: order.ID, AmountCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, enums.WalletTransactionDebit, row.Type)
	assert.EqualValues(t, 1000, row.BalanceAfterCents)
	require.NotNil(t, row.ReferenceID)
	assert.Equal(t, order.ID, *row.ReferenceID)

	_, err = svc.UseBalance(ctx, UseBalanceInput{UserID: user, OrderID: order.ID, AmountCents: 600})
	assert.Equal(t, pkgerrors.ReasonInvalidAmount, pkgerrors.ReasonOf(err), "cumulative spend is capped at the order total")

	_, err = svc.UseBalance(ctx, UseBalanceInput{UserID: uuid.New(), OrderID: order.ID, AmountCents: 100})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	cancelled := seedOrder(t, conn, user, 1500, enums.OrderStatusCancelled)
	_, err = svc.UseBalance(ctx, UseBalanceInput{UserID: user, OrderID: cancelled.ID, AmountCents: 100})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	wallet, err := svc.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, wallet.BalanceCents)
	assert.EqualValues(t, 1000, wallet.TotalSpentCents)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventWalletDebited).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestRefundOrderReturnsUnrefundedSpend(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	order := seedOrder(t, conn, user, 3000, enums.OrderStatusCreated)

	_, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 5000, ReferenceType: enums.WalletReferenceAdjustment})
	require.NoError(t, err)
	for _, amount := range []int64{1000, 500} {
		_, err = svc.UseBalance(ctx, UseBalanceInput{UserID: user, OrderID: order.ID, AmountCents: amount})
		require.NoError(t, err)
	}

	refund := func() int64 {
		var n int64
		require.NoError(t, svc.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = svc.RefundOrderTx(ctx, tx, user, order.ID)
			return err
		}))
		return n
	}
	assert.EqualValues(t, 1500, refund())
	assert.Zero(t, refund(), "an order is refunded once")

	wallet, err := svc.GetBalance(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, wallet.BalanceCents)
	report, err := svc.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, report.DriftCents)

	var stranger int64
	require.NoError(t, svc.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		stranger, err = svc.RefundOrderTx(ctx, tx, uuid.New(), order.ID)
		return err
	}))
	assert.Zero(t, stranger)
}

func TestLedgerReplayMatchesBalance(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	moves := []int64{500, 1200, -300, 75, -1000, 40}
	for _, amount := range moves {
		if amount > 0 {
			_, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: amount, ReferenceType: enums.WalletReferenceAdjustment})
			require.NoError(t, err)
			continue
		}
		err := svc.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := svc.DebitTx(ctx, tx, DebitInput{UserID: user, AmountCents: -amount, ReferenceType: enums.WalletReferenceWithdrawal})
			return err
		})
		require.NoError(t, err)
	}

	report, err := svc.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 515, report.BalanceCents)
	assert.EqualValues(t, report.BalanceCents, report.ReplayedCents)
	assert.Zero(t, report.DriftCents)

	page, err := svc.ListTransactions(ctx, user, pagination.Params{Limit: 100})
	require.NoError(t, err)
	require.Len(t, page.Items, len(moves))
	var running int64
	for i := len(page.Items) - 1; i >= 0; i-- {
		running += page.Items[i].Signed()
		assert.Equal(t, running, page.Items[i].BalanceAfterCents)
	}

	require.NoError(t, conn.Model(&models.Wallet{}).Where("id = ?", report.WalletID).Update("balance_cents", 999).Error)
	drifted, err := svc.Reconcile(ctx, user)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ReasonWalletDrift, pkgerrors.ReasonOf(err))
	assert.EqualValues(t, 484, drifted.DriftCents)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestListWalletOwnersPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var users []string
	for i := 0; i < 3; i++ {
		user := uuid.New()
		users = append(users, user.String())
		_, err := svc.Credit(ctx, CreditInput{UserID: user, AmountCents: 10, ReferenceType: enums.WalletReferenceAdjustment})
		require.NoError(t, err)
	}
	sort.Strings(users)

	first, err := svc.ListWalletOwners(ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, users[0], first[0].String())

	rest, err := svc.ListWalletOwners(ctx, first[1], 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, users[2], rest[0].String())
}
