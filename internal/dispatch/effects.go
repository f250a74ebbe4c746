package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/money"
)

type cashbackProcessor interface {
	ProcessForOrder(ctx context.Context, orderID uuid.UUID) (*models.Cashback, error)
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error
}

type settlementComputer interface {
	ComputeForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorSettlement, error)
}

// DeliveryEffects runs the financial side effects of a delivered order:
// cashback first, then vendor settlements, which net out that cashback.
// Both steps are idempotent so the lifecycle hook and the dispatcher may
// each run them.
type DeliveryEffects struct {
	cashback    cashbackProcessor
	settlements settlementComputer
	logg        *logger.Logger
}

func NewDeliveryEffects(cashback cashbackProcessor, settlements settlementComputer, logg *logger.Logger) (*DeliveryEffects, error) {
	if cashback == nil {
		return nil, errors.New("cashback processor is required")
	}
	if settlements == nil {
		return nil, errors.New("settlement computer is required")
	}
	return &DeliveryEffects{cashback: cashback, settlements: settlements, logg: logg}, nil
}

// OnDelivered stops at a retryable cashback failure so settlements are never
// computed against a cashback that has not been recorded yet. A cashback that
// can never be credited is parked as FAILED and settlements proceed without it.
func (d *DeliveryEffects) OnDelivered(ctx context.Context, orderID uuid.UUID) error {
	cb, err := d.cashback.ProcessForOrder(ctx, orderID)
	if err != nil {
		if pkgerrors.IsRetryable(err) {
			return err
		}
		if markErr := d.cashback.MarkFailed(ctx, orderID, err.Error()); markErr != nil {
			return markErr
		}
		cb = nil
	}
	rows, err := d.settlements.ComputeForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if d.logg != nil {
		fields := map[string]any{
			"order_id":    orderID.String(),
			"settlements": len(rows),
		}
		if cb != nil {
			fields["cashback_status"] = cb.Status
			fields["cashback"] = money.Format(cb.AmountCents)
		}
		d.logg.Debug(d.logg.WithFields(ctx, fields), "delivery effects applied")
	}
	return nil
}
