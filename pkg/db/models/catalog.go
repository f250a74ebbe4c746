package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is a vendor storefront. The owner is the vendor user id.
type Store struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Store) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Product is the authoritative price and stock for a listing. Stock only
// moves through conditional updates in the products repository.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID    uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`
	Title      string    `gorm:"column:title;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null;check:chk_products_price,price_cents >= 0"`
	Stock      int       `gorm:"column:stock;not null;default:0;check:chk_products_stock,stock >= 0"`
	IsActive   bool      `gorm:"column:is_active;not null"`
	IsApproved bool      `gorm:"column:is_approved;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Purchasable reports whether the listing may be ordered at all.
func (p Product) Purchasable() bool {
	return p.IsActive && p.IsApproved
}

// Address is a buyer's saved address. Orders copy it into a snapshot.
type Address struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	Label      string    `gorm:"column:label"`
	Recipient  string    `gorm:"column:recipient;not null"`
	Phone      string    `gorm:"column:phone"`
	Line1      string    `gorm:"column:line1;not null"`
	Line2      *string   `gorm:"column:line2"`
	City       string    `gorm:"column:city;not null"`
	Region     string    `gorm:"column:region;not null"`
	PostalCode string    `gorm:"column:postal_code;not null"`
	Country    string    `gorm:"column:country;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Address) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// CartItem is one line of a buyer's cart.
type CartItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_cart_items_user_product_variant"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_user_product_variant"`
	VariantID *uuid.UUID `gorm:"column:variant_id;type:uuid;uniqueIndex:ux_cart_items_user_product_variant"`
	Quantity  int        `gorm:"column:quantity;not null;check:chk_cart_items_quantity,quantity > 0"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
