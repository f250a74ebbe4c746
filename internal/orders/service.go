package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/address"
	"github.com/angelmondragon/orderledger/internal/cart"
	"github.com/angelmondragon/orderledger/internal/coupons"
	"github.com/angelmondragon/orderledger/internal/pricing"
	"github.com/angelmondragon/orderledger/internal/products"
	"github.com/angelmondragon/orderledger/internal/stores"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/payloads"
	"github.com/angelmondragon/orderledger/pkg/pagination"
	"github.com/angelmondragon/orderledger/pkg/retry"
	"github.com/angelmondragon/orderledger/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SettlementCanceller voids payouts that have not been requested yet.
type SettlementCanceller interface {
	CancelPendingForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

// WalletRefunder returns wallet funds spent on an order that will not be
// fulfilled.
type WalletRefunder interface {
	RefundOrderTx(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (int64, error)
}

// DeliveredHook runs the delivery side effects right after the DELIVERED
// transition commits. The outbox dispatcher re-drives it on failure.
type DeliveredHook interface {
	OnDelivered(ctx context.Context, orderID uuid.UUID) error
}

// Policy carries the lifecycle knobs read from configuration.
type Policy struct {
	ReturnWindow       time.Duration
	ConflictRetries    uint64
	OrderNumberRetries int
}

// ServiceParams groups the collaborators of the lifecycle service.
type ServiceParams struct {
	Tx          txRunner
	Orders      *Repository
	Products    *products.Repository
	Coupons     *coupons.Repository
	Addresses   *address.Repository
	Cart        *cart.Repository
	Stores      *stores.Repository
	Resolver    *pricing.Resolver
	Outbox      outboxPublisher
	Settlements SettlementCanceller
	Wallet      WalletRefunder
	Delivered   DeliveredHook
	Logger      *logger.Logger
	Policy      Policy
}

// Service owns every order state change.
type Service struct {
	tx          txRunner
	orders      *Repository
	products    *products.Repository
	coupons     *coupons.Repository
	addresses   *address.Repository
	cart        *cart.Repository
	stores      *stores.Repository
	resolver    *pricing.Resolver
	outbox      outboxPublisher
	settlements SettlementCanceller
	wallet      WalletRefunder
	delivered   DeliveredHook
	logg        *logger.Logger
	policy      Policy
	now         func() time.Time
	newNumber   func() (string, error)

	// beforeReserve runs between pricing and the conditional reservations.
	beforeReserve func(ctx context.Context, tx *gorm.DB) error
}

// NewService validates the dependencies and builds the lifecycle service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Products == nil:
		return nil, fmt.Errorf("products repository required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupons repository required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address repository required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Stores == nil:
		return nil, fmt.Errorf("stores repository required")
	case params.Resolver == nil:
		return nil, fmt.Errorf("pricing resolver required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Settlements == nil:
		return nil, fmt.Errorf("settlement canceller required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet refunder required")
	}
	policy := params.Policy
	if policy.OrderNumberRetries <= 0 {
		policy.OrderNumberRetries = 5
	}
	return &Service{
		tx:          params.Tx,
		orders:      params.Orders,
		products:    params.Products,
		coupons:     params.Coupons,
		addresses:   params.Addresses,
		cart:        params.Cart,
		stores:      params.Stores,
		resolver:    params.Resolver,
		outbox:      params.Outbox,
		settlements: params.Settlements,
		wallet:      params.Wallet,
		delivered:   params.Delivered,
		logg:        params.Logger,
		policy:      policy,
		now:         time.Now,
		newNumber:   NewOrderNumber,
	}, nil
}

// SetDeliveredHook wires the delivery side effects after construction, since
// the cashback engine itself depends on the orders repository.
func (s *Service) SetDeliveredHook(hook DeliveredHook) {
	s.delivered = hook
}

// CreateOrder turns cart lines into an order. Pricing, coupon usage, stock
// decrements, the order rows and cart cleanup commit or roll back together.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ShippingAddressID == uuid.Nil || input.BillingAddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping and billing addresses are required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.PaymentMethod)
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		quote, err := s.resolver.Resolve(ctx, tx, input.Lines, input.CouponCode)
		if err != nil {
			return err
		}

		addresses := s.addresses.WithTx(tx)
		shipping, err := addresses.SnapshotOwned(ctx, input.ShippingAddressID, input.UserID)
		if err != nil {
			return err
		}
		billing, err := addresses.SnapshotOwned(ctx, input.BillingAddressID, input.UserID)
		if err != nil {
			return err
		}

		if s.beforeReserve != nil {
			if err := s.beforeReserve(ctx, tx); err != nil {
				return err
			}
		}

		if quote.CouponID != nil {
			ok, err := s.coupons.WithTx(tx).IncrementUsage(ctx, *quote.CouponID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
			}
			if !ok {
				return pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonCouponUsageExceeded, "coupon usage limit reached")
			}
		}

		productRepo := s.products.WithTx(tx)
		for _, line := range quote.Lines {
			ok, err := productRepo.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !ok {
				return pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonInsufficientStock, "insufficient stock").
					WithDetails(map[string]any{
						"product_id": line.ProductID.String(),
						"requested":  line.Quantity,
					})
			}
		}

		order := buildOrder(input, quote, shipping, billing)
		repo := s.orders.WithTx(tx)
		if err := s.insertWithNumber(ctx, repo, order); err != nil {
			return err
		}

		consumed := make([]cart.Line, 0, len(input.Lines))
		for _, line := range input.Lines {
			consumed = append(consumed, cart.Line{ProductID: line.ProductID, VariantID: line.VariantID, Quantity: line.Quantity})
		}
		if _, err := s.cart.WithTx(tx).RemoveConsumed(ctx, input.UserID, consumed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart lines")
		}

		actor := Actor{UserID: input.UserID, Role: enums.ActorRoleBuyer}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  enums.OrderStatusCreated,
			ActorID:   actor.idPtr(),
			ActorRole: actor.Role,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderCreatedEvent{
				OrderID:          order.ID,
				OrderNumber:      order.OrderNumber,
				BuyerID:          order.BuyerID,
				StoreIDs:         storeIDs(order.Items),
				SubtotalCents:    order.SubtotalCents,
				DiscountCents:    order.DiscountCents,
				TotalAmountCents: order.TotalAmountCents,
				CouponCode:       order.CouponCode,
				PaymentMethod:    order.PaymentMethod,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     created.ID.String(),
			"order_number": created.OrderNumber,
			"total_cents":  created.TotalAmountCents,
		})
		s.logg.Info(logCtx, "order created")
	}
	return created, nil
}

func buildOrder(input CreateOrderInput, quote *pricing.Quote, shipping, billing types.AddressSnapshot) *models.Order {
	order := &models.Order{
		BuyerID:          input.UserID,
		SubtotalCents:    quote.SubtotalCents,
		DiscountCents:    quote.DiscountCents,
		TotalAmountCents: quote.TotalCents,
		CouponID:         quote.CouponID,
		CouponCode:       quote.CouponCode,
		PaymentMethod:    input.PaymentMethod,
		PaymentStatus:    enums.PaymentStatusPending,
		OrderStatus:      enums.OrderStatusCreated,
		ShippingAddress:  shipping,
		BillingAddress:   billing,
		Notes:            input.Notes,
		Version:          1,
	}
	for _, line := range quote.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      line.ProductID,
			StoreID:        line.StoreID,
			ProductTitle:   line.Title,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
		})
	}
	return order
}

func (s *Service) insertWithNumber(ctx context.Context, repo *Repository, order *models.Order) error {
	for attempt := 1; attempt <= s.policy.OrderNumberRetries; attempt++ {
		number, err := s.newNumber()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number
		err = repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !isOrderNumberCollision(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"order_number": number, "attempt": attempt})
			s.logg.Warn(logCtx, "order number collision, regenerating")
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order number")
}

func isOrderNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, "ux_orders_order_number") || db.IsUniqueViolation(err, "orders.order_number")
}

// UpdateStatus applies one transition on behalf of actor. Requesting the
// current status returns the order unchanged.
func (s *Service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", input.Status)
	}
	if !input.Actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	if input.Status == enums.OrderStatusCancelled {
		reason := ""
		if input.Notes != nil {
			reason = *input.Notes
		}
		return s.cancel(ctx, CancelOrderInput{OrderID: input.OrderID, Actor: input.Actor, Reason: reason}, true)
	}
	return s.transition(ctx, input, nil)
}

// ConfirmPayment is the payment gateway boundary. The confirmation is taken
// as true and applied as CREATED -> PAID by the system actor.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, paymentReference string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var extra map[string]any
	if paymentReference != "" {
		extra = map[string]any{"payment_reference": paymentReference}
	}
	return s.transition(ctx, UpdateStatusInput{
		OrderID: orderID,
		Status:  enums.OrderStatusPaid,
		Actor:   SystemActor,
	}, extra)
}

func (s *Service) transition(ctx context.Context, input UpdateStatusInput, extra map[string]any) (*models.Order, error) {
	var (
		result    *models.Order
		delivered bool
	)
	err := retry.OnConflict(ctx, s.retryPolicy(), func(ctx context.Context) error {
		delivered = false
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.orders.WithTx(tx)
			order, err := loadForUpdate(ctx, repo, input.OrderID)
			if err != nil {
				return err
			}
			if err := s.authorize(ctx, tx, order, input.Actor, input.Status); err != nil {
				return err
			}
			if order.OrderStatus == input.Status {
				result = order
				return nil
			}
			if !CanTransition(order.OrderStatus, input.Status) {
				return invalidTransition(order.OrderStatus, input.Status)
			}

			now := s.now().UTC()
			if input.Status == enums.OrderStatusReturned && order.OrderStatus == enums.OrderStatusDelivered {
				if err := s.checkReturnWindow(order, now); err != nil {
					return err
				}
			}

			updates := map[string]any{"order_status": input.Status}
			for k, v := range extra {
				updates[k] = v
			}
			switch input.Status {
			case enums.OrderStatusPaid:
				updates["payment_status"] = enums.PaymentStatusPaid
				updates["paid_at"] = now
			case enums.OrderStatusShipped:
				updates["shipped_at"] = now
			case enums.OrderStatusDelivered:
				updates["delivered_at"] = now
			case enums.OrderStatusReturned:
				updates["returned_at"] = now
			}

			applied, err := repo.UpdateIfVersion(ctx, order.ID, order.Version, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !applied {
				return pkgerrors.Conflict("order was modified concurrently")
			}

			if input.Status == enums.OrderStatusReturned {
				if _, err := s.settlements.CancelPendingForOrder(ctx, tx, order.ID); err != nil {
					return err
				}
			}

			if err := s.recordTransition(ctx, tx, repo, order, input.Status, input.Actor, input.Notes, now); err != nil {
				return err
			}

			result, err = repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			delivered = input.Status == enums.OrderStatusDelivered
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if delivered {
		s.runDeliveredHook(ctx, result.ID)
	}
	return result, nil
}

func (s *Service) runDeliveredHook(ctx context.Context, orderID uuid.UUID) {
	if s.delivered == nil {
		return
	}
	if err := s.delivered.OnDelivered(ctx, orderID); err != nil && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Error(logCtx, "delivery side effects deferred to dispatcher", err)
	}
}

func (s *Service) checkReturnWindow(order *models.Order, now time.Time) error {
	if s.policy.ReturnWindow <= 0 || order.DeliveredAt == nil {
		return nil
	}
	closesAt := order.DeliveredAt.UTC().Add(s.policy.ReturnWindow)
	if now.After(closesAt) {
		return pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonReturnWindowClosed, "return window has closed").
			WithDetails(map[string]any{"closed_at": closesAt})
	}
	return nil
}

// CancelOrder cancels an order that has not shipped and puts its stock back.
func (s *Service) CancelOrder(ctx context.Context, input CancelOrderInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing")
	}
	return s.cancel(ctx, input, false)
}

func (s *Service) cancel(ctx context.Context, input CancelOrderInput, tolerateCancelled bool) (*models.Order, error) {
	var (
		result   *models.Order
		restored int
		refunded int64
	)
	err := retry.OnConflict(ctx, s.retryPolicy(), func(ctx context.Context) error {
		restored = 0
		refunded = 0
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.orders.WithTx(tx)
			order, err := loadForUpdate(ctx, repo, input.OrderID)
			if err != nil {
				return err
			}
			if err := s.authorize(ctx, tx, order, input.Actor, enums.OrderStatusCancelled); err != nil {
				return err
			}

			switch order.OrderStatus {
			case enums.OrderStatusCancelled:
				if tolerateCancelled {
					result = order
					return nil
				}
				return invalidTransition(order.OrderStatus, enums.OrderStatusCancelled)
			case enums.OrderStatusReturned:
				return invalidTransition(order.OrderStatus, enums.OrderStatusCancelled)
			case enums.OrderStatusShipped, enums.OrderStatusDelivered:
				return pkgerrors.Business(
					pkgerrors.CodeStateConflict,
					pkgerrors.ReasonCannotCancelShippedOrDelivered,
					fmt.Sprintf("order is already %s", order.OrderStatus),
				).WithDetails(map[string]any{"current_status": order.OrderStatus})
			}

			now := s.now().UTC()
			updates := map[string]any{
				"order_status": enums.OrderStatusCancelled,
				"cancelled_at": now,
			}
			if input.Reason != "" {
				updates["cancel_reason"] = input.Reason
			}
			paymentStatus := order.PaymentStatus
			if order.OrderStatus == enums.OrderStatusPaid || order.PaymentStatus == enums.PaymentStatusPaid {
				paymentStatus = enums.PaymentStatusRefundPending
				updates["payment_status"] = paymentStatus
			}

			applied, err := repo.UpdateIfVersion(ctx, order.ID, order.Version, updates)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
			}
			if !applied {
				return pkgerrors.Conflict("order was modified concurrently")
			}

			productRepo := s.products.WithTx(tx)
			for _, item := range order.Items {
				ok, err := productRepo.RestoreStock(ctx, item.ProductID, item.Quantity)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
				}
				if !ok {
					if s.logg != nil {
						logCtx := s.logg.WithField(ctx, "product_id", item.ProductID.String())
						s.logg.Warn(logCtx, "product missing while restoring stock")
					}
					continue
				}
				restored += item.Quantity
			}

			refunded, err = s.wallet.RefundOrderTx(ctx, tx, order.BuyerID, order.ID)
			if err != nil {
				return err
			}

			var notes *string
			if input.Reason != "" {
				notes = &input.Reason
			}
			if err := s.recordTransition(ctx, tx, repo, order, enums.OrderStatusCancelled, input.Actor, notes, now); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(input.Actor),
				OccurredAt:    now,
				Data: payloads.OrderCancelledEvent{
					OrderID:       order.ID,
					FromStatus:    order.OrderStatus,
					Reason:        input.Reason,
					RestoredUnits: restored,
					WalletRefund:  refunded,
					PaymentStatus: paymentStatus,
					CancelledAt:   now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order cancelled")
			}

			result, err = repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil && (restored > 0 || refunded > 0) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":            result.ID.String(),
			"restored_units":      restored,
			"wallet_refund_cents": refunded,
		})
		s.logg.Info(logCtx, "order cancelled")
	}
	return result, nil
}

// recordTransition appends the audit row and queues the status events.
func (s *Service) recordTransition(ctx context.Context, tx *gorm.DB, repo *Repository, order *models.Order, to enums.OrderStatus, actor Actor, notes *string, at time.Time) error {
	from := order.OrderStatus
	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: &from,
		ToStatus:   to,
		ActorID:    actor.idPtr(),
		ActorRole:  actor.Role,
		Notes:      notes,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}

	events := []outbox.DomainEvent{{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		DedupeKey:     string(to),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   to,
			ActorRole:  actor.Role,
			Notes:      notes,
			ChangedAt:  at,
		},
	}}
	switch to {
	case enums.OrderStatusPaid:
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID, FromStatus: from, ToStatus: to, ActorRole: actor.Role, ChangedAt: at,
			},
		})
	case enums.OrderStatusDelivered:
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderDeliveredEvent{
				OrderID:          order.ID,
				BuyerID:          order.BuyerID,
				TotalAmountCents: order.TotalAmountCents,
				DeliveredAt:      at,
			},
		})
	case enums.OrderStatusReturned:
		events = append(events, outbox.DomainEvent{
			EventType:     enums.EventOrderReturned,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID, FromStatus: from, ToStatus: to, ActorRole: actor.Role, Notes: notes, ChangedAt: at,
			},
		})
	}

	for _, event := range events {
		event.Actor = actorRef(actor)
		event.OccurredAt = at
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(event.EventType))
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    order.ID.String(),
			"from_status": from,
			"to_status":   to,
			"actor_role":  actor.Role,
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return nil
}

// authorize decides whether actor may drive the order to target. Legality of
// the transition itself is checked separately against the table.
func (s *Service) authorize(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor, target enums.OrderStatus) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleSystem:
		if target != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeForbidden, "system actor may only confirm payment")
		}
		if order.PaymentMethod.IsCash() {
			return pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidStatusTransition,
				"cash on delivery orders are marked paid by the vendor")
		}
		return nil
	case enums.ActorRoleBuyer:
		if order.BuyerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if target != enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeForbidden, "buyers may only cancel orders")
		}
		return nil
	case enums.ActorRoleVendor:
		owns, err := s.stores.WithTx(tx).VendorOwnsAnyItem(ctx, order.ID, actor.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check vendor ownership")
		}
		if !owns {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order contains no products from vendor stores")
		}
		switch target {
		case enums.OrderStatusShipped, enums.OrderStatusDelivered, enums.OrderStatusCancelled:
			return nil
		case enums.OrderStatusPaid:
			if order.PaymentMethod.IsCash() {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeForbidden, "only cash on delivery orders can be marked paid by a vendor")
		}
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "vendors cannot move orders to %s", target)
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
}

// GetOrder returns the order when actor is allowed to see it. Orders outside
// the actor's visibility read as not found.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	visible, err := s.visibleTo(ctx, order, actor)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) visibleTo(ctx context.Context, order *models.Order, actor Actor) (bool, error) {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true, nil
	case enums.ActorRoleBuyer:
		return order.BuyerID == actor.UserID, nil
	case enums.ActorRoleVendor:
		owns, err := s.stores.VendorOwnsAnyItem(ctx, order.ID, actor.UserID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check vendor ownership")
		}
		return owns, nil
	}
	return false, nil
}

// ListBuyerOrders pages through the buyer's own orders newest first.
func (s *Service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params, filters BuyerOrderFilters) (*pagination.Result[models.Order], error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", *filters.Status)
	}
	page, err := s.orders.ListByBuyer(ctx, buyerID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return page, nil
}

// ListStatusHistory returns the audit trail of an order visible to actor.
func (s *Service) ListStatusHistory(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.OrderStatusHistory, error) {
	if _, err := s.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	rows, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list status history")
	}
	return rows, nil
}

func (s *Service) retryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: s.policy.ConflictRetries}
}

func loadForUpdate(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func storeIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.StoreID]; ok {
			continue
		}
		seen[item.StoreID] = struct{}{}
		out = append(out, item.StoreID)
	}
	return out
}
