package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		want     bool
	}{
		{enums.OrderStatusCreated, enums.OrderStatusPaid, true},
		{enums.OrderStatusCreated, enums.OrderStatusCancelled, true},
		{enums.OrderStatusCreated, enums.OrderStatusDelivered, false},
		{enums.OrderStatusCreated, enums.OrderStatusShipped, false},
		{enums.OrderStatusPaid, enums.OrderStatusShipped, true},
		{enums.OrderStatusPaid, enums.OrderStatusCancelled, true},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered, true},
		{enums.OrderStatusShipped, enums.OrderStatusReturned, true},
		{enums.OrderStatusShipped, enums.OrderStatusCancelled, false},
		{enums.OrderStatusDelivered, enums.OrderStatusReturned, true},
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled, false},
		{enums.OrderStatusCancelled, enums.OrderStatusCreated, false},
		{enums.OrderStatusReturned, enums.OrderStatusDelivered, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.Empty(t, AllowedFrom(enums.OrderStatusCancelled))
	assert.Empty(t, AllowedFrom(enums.OrderStatusReturned))
}

func TestInvalidTransitionNamesBothStates(t *testing.T) {
	err := invalidTransition(enums.OrderStatusCreated, enums.OrderStatusDelivered)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.ReasonInvalidStatusTransition, typed.Reason())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusCreated, details["current_status"])
	assert.Equal(t, enums.OrderStatusDelivered, details["requested_status"])
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusCancelled}, details["allowed_statuses"])
}

func TestNewOrderNumber(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		number, err := NewOrderNumber()
		require.NoError(t, err)
		assert.Regexp(t, `^ORD-[0-9A-HJKMNP-TV-Z]{10}$`, number)
		assert.False(t, seen[number])
		seen[number] = true
	}
}
