package address

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/types"
)

// Repository reads saved addresses. Structure is not validated; only
// ownership matters to orders.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// SnapshotOwned loads an address and copies it into an order snapshot. An
// address that is missing or belongs to another user fails the same way so
// callers cannot probe foreign ids.
func (r *Repository) SnapshotOwned(ctx context.Context, addressID, userID uuid.UUID) (types.AddressSnapshot, error) {
	var row models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", addressID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AddressSnapshot{}, pkgerrors.Business(pkgerrors.CodeForbidden, pkgerrors.ReasonAddressNotOwned, "address does not belong to user").
			WithDetails(map[string]any{"address_id": addressID.String()})
	}
	if err != nil {
		return types.AddressSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return Snapshot(row), nil
}

// Snapshot copies the saved address fields verbatim.
func Snapshot(row models.Address) types.AddressSnapshot {
	return types.AddressSnapshot{
		AddressID:  row.ID.String(),
		Label:      row.Label,
		Recipient:  row.Recipient,
		Phone:      row.Phone,
		Line1:      row.Line1,
		Line2:      row.Line2,
		City:       row.City,
		Region:     row.Region,
		PostalCode: row.PostalCode,
		Country:    row.Country,
	}
}
