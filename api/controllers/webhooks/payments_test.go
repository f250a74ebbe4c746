package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
)

type stubConfirmer struct {
	orderID uuid.UUID
	ref     string
	err     error
}

func (s *stubConfirmer) ConfirmPayment(_ context.Context, orderID uuid.UUID, ref string) (*models.Order, error) {
	s.orderID = orderID
	s.ref = ref
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: orderID, OrderStatus: enums.OrderStatusPaid, PaymentStatus: enums.PaymentStatusPaid}, nil
}

func systemRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/confirm", strings.NewReader(body))
	return req.WithContext(middleware.WithActor(req.Context(), uuid.Nil, enums.ActorRoleSystem))
}

func TestConfirmPayment(t *testing.T) {
	svc := &stubConfirmer{}
	orderID := uuid.New()

	resp := httptest.NewRecorder()
	ConfirmPayment(svc, nil).ServeHTTP(resp, systemRequest(`{"order_id":"`+orderID.String()+`","payment_reference":" pay_123 "}`))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, orderID, svc.orderID)
	require.Equal(t, "pay_123", svc.ref)
}

func TestConfirmPaymentSurfacesStateConflict(t *testing.T) {
	svc := &stubConfirmer{
		err: pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidStatusTransition, "order is already paid"),
	}

	resp := httptest.NewRecorder()
	ConfirmPayment(svc, nil).ServeHTTP(resp, systemRequest(`{"order_id":"`+uuid.NewString()+`"}`))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	require.Contains(t, resp.Body.String(), "InvalidStatusTransition")
}

func TestConfirmPaymentRequiresOrderID(t *testing.T) {
	resp := httptest.NewRecorder()
	ConfirmPayment(&stubConfirmer{}, nil).ServeHTTP(resp, systemRequest(`{}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
