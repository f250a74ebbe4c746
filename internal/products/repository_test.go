package products

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderledger/pkg/db/dbtest"
	"github.com/angelmondragon/orderledger/pkg/db/models"
)

func seedProduct(t *testing.T, repo *Repository, stock int) models.Product {
	t.Helper()
	product := models.Product{
		StoreID:    uuid.New(),
		Title:      "Tea",
		PriceCents: 500,
		Stock:      stock,
		IsActive:   true,
		IsApproved: true,
	}
	require.NoError(t, repo.db.Create(&product).Error)
	return product
}

func TestDecrementStockIsConditional(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	product := seedProduct(t, repo, 3)

	ok, err := repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.DecrementStock(ctx, product.ID, 2)
	require.NoError(t, err)
	require.False(t, ok)

	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Stock)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	product := seedProduct(t, repo, 5)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.DecrementStock(ctx, product.ID, 1)
			if err == nil && ok {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, sold)
	reloaded, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Zero(t, reloaded.Stock)
}

func TestRestoreStockAndFindByIDs(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	a := seedProduct(t, repo, 1)
	b := seedProduct(t, repo, 0)

	ok, err := repo.RestoreStock(ctx, b.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.RestoreStock(ctx, uuid.New(), 2)
	require.NoError(t, err)
	require.False(t, ok)

	found, err := repo.FindByIDs(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, 2, found[b.ID].Stock)
}
