package stores

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
)

func TestOwnershipQueries(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	vendor := uuid.New()
	other := uuid.New()
	mine := models.Store{OwnerUserID: vendor, Name: "Mine"}
	theirs := models.Store{OwnerUserID: other, Name: "Theirs"}
	require.NoError(t, conn.Create(&mine).Error)
	require.NoError(t, conn.Create(&theirs).Error)

	orderID := uuid.New()
	require.NoError(t, conn.Create(&models.OrderItem{
		OrderID:        orderID,
		ProductID:      uuid.New(),
		StoreID:        theirs.ID,
		ProductTitle:   "Mug",
		UnitPriceCents: 100,
		Quantity:       1,
		LineTotalCents: 100,
	}).Error)

	owns, err := repo.VendorOwnsAnyItem(ctx, orderID, vendor)
	require.NoError(t, err)
	require.False(t, owns)

	owns, err = repo.VendorOwnsAnyItem(ctx, orderID, other)
	require.NoError(t, err)
	require.True(t, owns)

	owners, err := repo.OwnersByStore(ctx, []uuid.UUID{mine.ID, theirs.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, owners, 2)
	require.Equal(t, vendor, owners[mine.ID])

	ids, err := repo.StoreIDsForVendor(ctx, vendor)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{mine.ID}, ids)
}
