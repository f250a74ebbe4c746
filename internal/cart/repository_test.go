package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
)

func TestRemoveConsumedOnlyTouchesOrderedLines(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	user := uuid.New()
	ordered := uuid.New()
	kept := uuid.New()
	variant := uuid.New()

	for _, item := range []models.CartItem{
		{UserID: user, ProductID: ordered, Quantity: 2},
		{UserID: user, ProductID: ordered, VariantID: &variant, Quantity: 1},
		{UserID: user, ProductID: kept, Quantity: 1},
		{UserID: uuid.New(), ProductID: ordered, Quantity: 4},
	} {
		item := item
		require.NoError(t, conn.Create(&item).Error)
	}

	removed, err := repo.RemoveConsumed(ctx, user, []Line{{ProductID: ordered, Quantity: 2}})
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var rows []models.CartItem
	require.NoError(t, conn.Where("user_id = ?", user).Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		if row.ProductID == ordered {
			require.NotNil(t, row.VariantID)
		}
	}
}

func TestCartLineUniquePerVariant(t *testing.T) {
	conn := dbtest.Open(t)
	user := uuid.New()
	product := uuid.New()
	variant := uuid.New()

	require.NoError(t, conn.Create(&models.CartItem{UserID: user, ProductID: product, VariantID: &variant, Quantity: 1}).Error)
	err := conn.Create(&models.CartItem{UserID: user, ProductID: product, VariantID: &variant, Quantity: 3}).Error
	require.Error(t, err)
}
