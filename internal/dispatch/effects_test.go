package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type stubCashback struct {
	err    error
	failed []string
}

func (s *stubCashback) ProcessForOrder(context.Context, uuid.UUID) (*models.Cashback, error) {
	return nil, s.err
}

func (s *stubCashback) MarkFailed(_ context.Context, _ uuid.UUID, reason string) error {
	s.failed = append(s.failed, reason)
	return nil
}

type stubSettlements struct {
	calls int
}

func (s *stubSettlements) ComputeForOrder(context.Context, uuid.UUID) ([]models.VendorSettlement, error) {
	s.calls++
	return []models.VendorSettlement{{}}, nil
}

func TestOnDeliveredStopsOnRetryableCashbackFailure(t *testing.T) {
	cb := &stubCashback{err: pkgerrors.Conflict("wallet busy")}
	st := &stubSettlements{}
	effects, err := NewDeliveryEffects(cb, st, nil)
	require.NoError(t, err)

	err = effects.OnDelivered(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Empty(t, cb.failed)
	assert.Zero(t, st.calls)
}

func TestOnDeliveredParksPermanentCashbackFailure(t *testing.T) {
	cb := &stubCashback{err: pkgerrors.Business(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAmount, "bad amount")}
	st := &stubSettlements{}
	effects, err := NewDeliveryEffects(cb, st, nil)
	require.NoError(t, err)

	require.NoError(t, effects.OnDelivered(context.Background(), uuid.New()))
	require.Len(t, cb.failed, 1)
	assert.Contains(t, cb.failed[0], "bad amount")
	assert.Equal(t, 1, st.calls)
}
