package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/api/middleware"
	"github.com/angelmondragon/orderledger/api/responses"
	"github.com/angelmondragon/orderledger/api/validators"
	internalorders "github.com/angelmondragon/orderledger/internal/orders"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/pagination"
)

// Service is the lifecycle surface the order routes need.
type Service interface {
	CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters internalorders.BuyerOrderFilters) (*pagination.Result[models.Order], error)
	ListStatusHistory(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) ([]models.OrderStatusHistory, error)
	UpdateStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error)
	CancelOrder(ctx context.Context, input internalorders.CancelOrderInput) (*models.Order, error)
}

type createOrderRequest struct {
	Lines             []pricing.CartLine `json:"lines" validate:"required,min=1,dive"`
	ShippingAddressID uuid.UUID          `json:"shipping_address_id" validate:"required"`
	BillingAddressID  uuid.UUID          `json:"billing_address_id" validate:"required"`
	PaymentMethod     string             `json:"payment_method" validate:"required"`
	CouponCode        string             `json:"coupon_code" validate:"max=64"`
	Notes             *string            `json:"notes" validate:"omitempty,max=500"`
}

type updateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes" validate:"omitempty,max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func actorFrom(r *http.Request) (internalorders.Actor, error) {
	id, role, err := middleware.RequireActor(r.Context())
	if err != nil {
		return internalorders.Actor{}, err
	}
	return internalorders.Actor{UserID: id, Role: role}, nil
}

// Create places an order from the caller's cart lines.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
			return
		}

		order, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			UserID:            actor.UserID,
			Lines:             req.Lines,
			ShippingAddressID: req.ShippingAddressID,
			BillingAddressID:  req.BillingAddressID,
			PaymentMethod:     method,
			CouponCode:        validators.NormalizeCode(req.CouponCode),
			Notes:             req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List pages the caller's own orders, newest first.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters internalorders.BuyerOrderFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		params := pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}
		list, err := svc.ListBuyerOrders(r.Context(), actor.UserID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order the caller may see.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// History returns the status audit trail of an order.
func History(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.ListStatusHistory(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// UpdateStatus requests a single lifecycle transition.
func UpdateStatus(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: orderID,
			Status:  status,
			Actor:   actor,
			Notes:   req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Cancel cancels an order that has not shipped and restores its stock.
func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.CancelOrder(r.Context(), internalorders.CancelOrderInput{
			OrderID: orderID,
			Actor:   actor,
			Reason:  validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
