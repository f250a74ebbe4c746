package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
)

// SeedStore creates a store owned by owner.
func SeedStore(t testing.TB, conn *gorm.DB, owner uuid.UUID) models.Store {
	t.Helper()
	store := models.Store{OwnerUserID: owner, Name: "store-" + owner.String()[:8]}
	if err := conn.Create(&store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// SeedProduct creates an active, approved product.
func SeedProduct(t testing.TB, conn *gorm.DB, storeID uuid.UUID, priceCents int64, stock int) models.Product {
	t.Helper()
	product := models.Product{
		StoreID:    storeID,
		Title:      "product-" + uuid.NewString()[:8],
		PriceCents: priceCents,
		Stock:      stock,
		IsActive:   true,
		IsApproved: true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedAddress creates a saved address for user.
func SeedAddress(t testing.TB, conn *gorm.DB, userID uuid.UUID) models.Address {
	t.Helper()
	addr := models.Address{
		UserID:     userID,
		Recipient:  "Test Buyer",
		Line1:      "1 Market St",
		City:       "Springfield",
		Region:     "IL",
		PostalCode: "62701",
		Country:    "US",
	}
	if err := conn.Create(&addr).Error; err != nil {
		t.Fatalf("seed address: %v", err)
	}
	return addr
}

// SeedPercentCoupon creates an active percentage coupon valid since an hour ago.
func SeedPercentCoupon(t testing.TB, conn *gorm.DB, code string, percent int64, minimumCents int64) models.Coupon {
	t.Helper()
	coupon := models.Coupon{
		Code:              code,
		DiscountType:      enums.DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(percent),
		MinimumOrderCents: minimumCents,
		ValidFrom:         time.Now().UTC().Add(-time.Hour),
		IsActive:          true,
	}
	if err := conn.Create(&coupon).Error; err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return coupon
}
