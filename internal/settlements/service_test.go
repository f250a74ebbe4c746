package settlements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/cashback"
	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/stores"
	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/pagination"
	"github.com/angelmondragon/orderledger/pkg/types"
)

type fixture struct {
	svc     *Service
	conn    *gorm.DB
	vendorA uuid.UUID
	vendorB uuid.UUID
	storeA  models.Store
	storeB  models.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := NewService(ServiceParams{
		Tx:       client,
		Repo:     NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Stores:   stores.NewRepository(conn),
		Cashback: cashback.NewRepository(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Policy:   Policy{CommissionPercent: decimal.NewFromInt(10), ConflictRetries: 3},
	})
	require.NoError(t, err)
	f := &fixture{svc: svc, conn: conn, vendorA: uuid.New(), vendorB: uuid.New()}
	f.storeA = dbtest.SeedStore(t, conn, f.vendorA)
	f.storeB = dbtest.SeedStore(t, conn, f.vendorB)
	return f
}

// seedOrder creates an order with store A lines of 10000 and 2000 and a
// store B line of 8000.
func (f *fixture) seedOrder(t *testing.T, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:      "ORD-" + uuid.NewString()[:10],
		BuyerID:          uuid.New(),
		SubtotalCents:    20000,
		TotalAmountCents: 20000,
		ShippingAddress:  types.AddressSnapshot{},
		BillingAddress:   types.AddressSnapshot{},
		PaymentMethod:    enums.PaymentMethodCard,
		PaymentStatus:    enums.PaymentStatusPaid,
		OrderStatus:      status,
		Version:          1,
	}
	require.NoError(t, f.conn.Create(&order).Error)
	lines := []struct {
		store uuid.UUID
		total int64
	}{
		{f.storeA.ID, 10000},
		{f.storeB.ID, 8000},
		{f.storeA.ID, 2000},
	}
	for _, line := range lines {
		require.NoError(t, f.conn.Create(&models.OrderItem{
			OrderID:        order.ID,
			ProductID:      uuid.New(),
			StoreID:        line.store,
			ProductTitle:   "item",
			UnitPriceCents: line.total,
			Quantity:       1,
			LineTotalCents: line.total,
		}).Error)
	}
	return order
}

func (f *fixture) seedCashback(t *testing.T, order models.Order, amount int64, status enums.CashbackStatus) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Cashback{
		OrderID:     order.ID,
		UserID:      order.BuyerID,
		AmountCents: amount,
		Percentage:  decimal.NewFromInt(5),
		Status:      status,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}).Error)
}

func (f *fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestComputeForOrderSplitsPerStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusDelivered)
	f.seedCashback(t, order, 901, enums.CashbackStatusProcessed)

	rows, err := f.svc.ComputeForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	a, b := rows[0], rows[1]
	assert.Equal(t, f.storeA.ID, a.StoreID)
	assert.Equal(t, f.vendorA, a.VendorID)
	assert.EqualValues(t, 12000, a.GrossCents)
	assert.EqualValues(t, 1200, a.PlatformCommissionCents)
	assert.EqualValues(t, 541, a.CashbackCents, "largest store absorbs the remainder")
	assert.EqualValues(t, 10259, a.NetPayoutCents)
	assert.Equal(t, enums.SettlementStatusPending, a.Status)

	assert.Equal(t, f.vendorB, b.VendorID)
	assert.EqualValues(t, 8000, b.GrossCents)
	assert.EqualValues(t, 800, b.PlatformCommissionCents)
	assert.EqualValues(t, 360, b.CashbackCents)
	assert.EqualValues(t, 6840, b.NetPayoutCents)

	assert.EqualValues(t, 901, a.CashbackCents+b.CashbackCents)
	assert.EqualValues(t, 2, f.countEvents(t, enums.EventSettlementCreated))

	again, err := f.svc.ComputeForOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, a.ID, again[0].ID)
	assert.Equal(t, b.ID, again[1].ID)
	assert.EqualValues(t, 2, f.countEvents(t, enums.EventSettlementCreated))
}

func TestComputeForOrderIgnoresLapsedCashback(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusDelivered)
	f.seedCashback(t, order, 1000, enums.CashbackStatusExpired)

	rows, err := f.svc.ComputeForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Zero(t, row.CashbackCents)
		assert.Equal(t, row.GrossCents-row.PlatformCommissionCents, row.NetPayoutCents)
	}
}

func TestComputeForOrderRequiresDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, status := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusCancelled, enums.OrderStatusReturned} {
		order := f.seedOrder(t, status)
		_, err := f.svc.ComputeForOrder(ctx, order.ID)
		require.Error(t, err, status)
		assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err), status)
	}

	_, err := f.svc.ComputeForOrder(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	var n int64
	require.NoError(t, f.conn.Model(&models.VendorSettlement{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRequestPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusDelivered)
	rows, err := f.svc.ComputeForOrder(ctx, order.ID)
	require.NoError(t, err)
	a := rows[0]

	_, err = f.svc.RequestPayout(ctx, a.ID, f.vendorB)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.svc.RequestPayout(ctx, uuid.New(), f.vendorA)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	got, err := f.svc.RequestPayout(ctx, a.ID, f.vendorA)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusProcessing, got.Status)
	require.NotNil(t, got.RequestedAt)
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventPayoutRequested))

	_, err = f.svc.RequestPayout(ctx, a.ID, f.vendorA)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, pkgerrors.ReasonInvalidStatusTransition, pkgerrors.ReasonOf(err))
}

func TestCancelPendingLeavesProcessingAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusDelivered)
	rows, err := f.svc.ComputeForOrder(ctx, order.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestPayout(ctx, rows[0].ID, f.vendorA)
	require.NoError(t, err)

	n, err := f.svc.CancelPendingForOrder(ctx, f.conn, order.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var b models.VendorSettlement
	require.NoError(t, f.conn.First(&b, "id = ?", rows[1].ID).Error)
	assert.Equal(t, enums.SettlementStatusCancelled, b.Status)

	earningsB, err := f.svc.CalculateEarnings(ctx, f.vendorB)
	require.NoError(t, err)
	assert.Zero(t, earningsB.NetPayoutCents)
	assert.EqualValues(t, 7200, earningsB.NetByStatus[enums.SettlementStatusCancelled])
}

func TestCalculateEarningsAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var first uuid.UUID
	for i := 0; i < 3; i++ {
		order := f.seedOrder(t, enums.OrderStatusDelivered)
		rows, err := f.svc.ComputeForOrder(ctx, order.ID)
		require.NoError(t, err)
		if i == 0 {
			first = rows[0].ID
		}
	}
	_, err := f.svc.RequestPayout(ctx, first, f.vendorA)
	require.NoError(t, err)

	earnings, err := f.svc.CalculateEarnings(ctx, f.vendorA)
	require.NoError(t, err)
	assert.EqualValues(t, 36000, earnings.GrossCents)
	assert.EqualValues(t, 3600, earnings.CommissionCents)
	assert.EqualValues(t, 32400, earnings.NetPayoutCents)
	assert.EqualValues(t, 3, earnings.SettlementCount)
	assert.EqualValues(t, 10800, earnings.NetByStatus[enums.SettlementStatusProcessing])
	assert.EqualValues(t, 21600, earnings.NetByStatus[enums.SettlementStatusPending])

	page, err := f.svc.ListForVendor(ctx, f.vendorA, pagination.Params{Limit: 2}, VendorFilters{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListForVendor(ctx, f.vendorA, pagination.Params{Limit: 2, Cursor: page.NextCursor}, VendorFilters{})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)

	pending := enums.SettlementStatusPending
	filtered, err := f.svc.ListForVendor(ctx, f.vendorA, pagination.Params{}, VendorFilters{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, filtered.Items, 2)

	none, err := f.svc.ListForVendor(ctx, f.vendorB, pagination.Params{}, VendorFilters{StoreID: &f.storeA.ID})
	require.NoError(t, err)
	assert.Empty(t, none.Items)

	_, err = f.svc.ListForVendor(ctx, f.vendorA, pagination.Params{Cursor: "%%%"}, VendorFilters{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
