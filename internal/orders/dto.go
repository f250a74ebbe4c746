package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Actor is the authenticated caller asserted by the identity layer.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// SystemActor is used by the payment confirmation boundary.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

func (a Actor) idPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// CreateOrderInput is everything checkout needs from the buyer. Prices and
// totals are never accepted from the caller.
type CreateOrderInput struct {
	UserID            uuid.UUID
	Lines             []pricing.CartLine
	ShippingAddressID uuid.UUID
	BillingAddressID  uuid.UUID
	PaymentMethod     enums.PaymentMethod
	CouponCode        string
	Notes             *string
}

// UpdateStatusInput requests one lifecycle transition.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Actor   Actor
	Notes   *string
}

// CancelOrderInput cancels an order that has not shipped.
type CancelOrderInput struct {
	OrderID uuid.UUID
	Actor   Actor
	Reason  string
}

// BuyerOrderFilters narrows ListBuyerOrders.
type BuyerOrderFilters struct {
	Status *enums.OrderStatus
}
