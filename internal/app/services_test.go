package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

func testConfig(inline bool) *config.Config {
	return &config.Config{
		FeatureFlags: config.FeatureFlagsConfig{InlineDelivery: inline},
		Policy: config.PolicyConfig{
			CashbackPercent:    "5",
			CashbackExpiry:     30 * 24 * time.Hour,
			CommissionPercent:  "10",
			ReturnWindow:       7 * 24 * time.Hour,
			ConflictRetries:    3,
			OrderNumberRetries: 5,
		},
	}
}

func TestNewServicesRequiresDependencies(t *testing.T) {
	_, err := NewServices(nil, nil, nil)
	require.Error(t, err)

	_, err = NewServices(testConfig(true), nil, nil)
	require.Error(t, err)
}

func TestDeliveredOrderSettlesInline(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc, err := NewServices(testConfig(true), nil, client)
	require.NoError(t, err)

	ctx := context.Background()
	buyer, vendor := uuid.New(), uuid.New()
	store := dbtest.SeedStore(t, conn, vendor)
	product := dbtest.SeedProduct(t, conn, store.ID, 1000, 3)
	addr := dbtest.SeedAddress(t, conn, buyer)

	order, err := svc.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:            buyer,
		Lines:             []pricing.CartLine{{ProductID: product.ID, Quantity: 1}},
		ShippingAddressID: addr.ID,
		BillingAddressID:  addr.ID,
		PaymentMethod:     enums.PaymentMethodCard,
	})
	require.NoError(t, err)

	_, err = svc.Orders.ConfirmPayment(ctx, order.ID, "pay_1")
	require.NoError(t, err)
	vendorActor := orders.Actor{UserID: vendor, Role: enums.ActorRoleVendor}
	for _, status := range []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		_, err = svc.Orders.UpdateStatus(ctx, orders.UpdateStatusInput{OrderID: order.ID, Status: status, Actor: vendorActor})
		require.NoError(t, err)
	}

	balance, err := svc.Wallet.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance.BalanceCents)

	var rows []models.VendorSettlement
	require.NoError(t, conn.Where("order_id = ?", order.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1000), rows[0].GrossCents)
	assert.Equal(t, int64(100), rows[0].PlatformCommissionCents)
	assert.Equal(t, int64(50), rows[0].CashbackCents)
	assert.Equal(t, int64(850), rows[0].NetPayoutCents)
	assert.Equal(t, vendor, rows[0].VendorID)
}

func TestDeliveredOrderWaitsForDispatcherWhenInlineDisabled(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc, err := NewServices(testConfig(false), nil, client)
	require.NoError(t, err)

	ctx := context.Background()
	buyer, vendor := uuid.New(), uuid.New()
	store := dbtest.SeedStore(t, conn, vendor)
	product := dbtest.SeedProduct(t, conn, store.ID, 1000, 3)
	addr := dbtest.SeedAddress(t, conn, buyer)

	order, err := svc.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:            buyer,
		Lines:             []pricing.CartLine{{ProductID: product.ID, Quantity: 1}},
		ShippingAddressID: addr.ID,
		BillingAddressID:  addr.ID,
		PaymentMethod:     enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	_, err = svc.Orders.ConfirmPayment(ctx, order.ID, "pay_1")
	require.NoError(t, err)
	vendorActor := orders.Actor{UserID: vendor, Role: enums.ActorRoleVendor}
	for _, status := range []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		_, err = svc.Orders.UpdateStatus(ctx, orders.UpdateStatusInput{OrderID: order.ID, Status: status, Actor: vendorActor})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&models.VendorSettlement{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, svc.Delivery.OnDelivered(ctx, order.ID))
	require.NoError(t, conn.Model(&models.VendorSettlement{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
