package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOrderStatusIsCaseInsensitive(t *testing.T) {
	status, err := ParseOrderStatus("DELIVERED")
	require.NoError(t, err)
	require.Equal(t, OrderStatusDelivered, status)

	_, err = ParseOrderStatus("lost")
	require.Error(t, err)
}

func TestOrderStatusTerminal(t *testing.T) {
	require.False(t, OrderStatusCreated.IsTerminal())
	require.False(t, OrderStatusShipped.IsTerminal())
	require.True(t, OrderStatusDelivered.IsTerminal())
	require.True(t, OrderStatusCancelled.IsTerminal())
	require.True(t, OrderStatusReturned.IsTerminal())
}

func TestPaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod(" COD ")
	require.NoError(t, err)
	require.True(t, method.IsCash())
	require.False(t, PaymentMethodCard.IsCash())

	_, err = ParsePaymentMethod("barter")
	require.Error(t, err)
}

func TestParseDiscountType(t *testing.T) {
	dt, err := ParseDiscountType("PERCENTAGE")
	require.NoError(t, err)
	require.Equal(t, DiscountTypePercentage, dt)

	_, err = ParseDiscountType("bogo")
	require.Error(t, err)
}

func TestOutboxEventTypes(t *testing.T) {
	et, err := ParseOutboxEventType("order_delivered")
	require.NoError(t, err)
	require.Equal(t, EventOrderDelivered, et)
	require.False(t, OutboxEventType("order_exploded").IsValid())
}

func TestParseActorRole(t *testing.T) {
	role, err := ParseActorRole("vendor")
	require.NoError(t, err)
	require.Equal(t, ActorRoleVendor, role)

	_, err = ParseActorRole("superuser")
	require.Error(t, err)
	require.False(t, ActorRole("").IsValid())
}

func TestSettlementAndCashbackStatuses(t *testing.T) {
	status, err := ParseSettlementStatus("processing")
	require.NoError(t, err)
	require.Equal(t, SettlementStatusProcessing, status)
	_, err = ParseSettlementStatus("refunded")
	require.Error(t, err)

	cb, err := ParseCashbackStatus("eligible")
	require.NoError(t, err)
	require.Equal(t, CashbackStatusEligible, cb)
	_, err = ParseCashbackStatus("granted")
	require.Error(t, err)
}

func TestWalletEnums(t *testing.T) {
	require.True(t, WalletTransactionCredit.IsValid())
	require.False(t, WalletTransactionType("transfer").IsValid())

	ref, err := ParseWalletReferenceType("cashback")
	require.NoError(t, err)
	require.Equal(t, WalletReferenceCashback, ref)
}
