package webhooks

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// PaymentConfirmer applies an external payment confirmation.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, paymentReference string) (*models.Order, error)
}

type paymentConfirmation struct {
	OrderID          uuid.UUID `json:"order_id" validate:"required"`
	PaymentReference string    `json:"payment_reference" validate:"max=128"`
}

// ConfirmPayment marks an order PAID. The route is mounted behind the
// system role; the gateway's word is taken as true.
func ConfirmPayment(svc PaymentConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := middleware.RequireActor(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req paymentConfirmation
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, req.OrderID.String())
		}
		order, err := svc.ConfirmPayment(ctx, req.OrderID, validators.SanitizeString(req.PaymentReference, 128))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "payment confirmed")
		}
		responses.WriteSuccess(w, order)
	}
}
