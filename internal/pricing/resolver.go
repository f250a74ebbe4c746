package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/internal/coupons"
	"github.com/angelmondragon/orderledger/internal/products"
	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/money"
)

// CartLine is what a caller may say about a line: which product and how
// many. Prices always come from the catalog.
type CartLine struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
}

// ResolvedLine carries the authoritative price snapshot for one line.
type ResolvedLine struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	StoreID        uuid.UUID  `json:"store_id"`
	Title          string     `json:"title"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	LineTotalCents int64      `json:"line_total_cents"`
}

// Quote is the outcome of a resolution.
type Quote struct {
	Lines         []ResolvedLine `json:"lines"`
	CouponID      *uuid.UUID     `json:"coupon_id,omitempty"`
	CouponCode    *string        `json:"coupon_code,omitempty"`
	SubtotalCents int64          `json:"subtotal_cents"`
	DiscountCents int64          `json:"discount_cents"`
	TotalCents    int64          `json:"total_cents"`
}

// Resolver prices cart lines and applies an optional coupon. It never
// mutates; coupon usage is consumed by order creation in the same
// transaction.
type Resolver struct {
	products *products.Repository
	coupons  *coupons.Repository
	now      func() time.Time
}

func NewResolver(productRepo *products.Repository, couponRepo *coupons.Repository) (*Resolver, error) {
	if productRepo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if couponRepo == nil {
		return nil, fmt.Errorf("coupons repository required")
	}
	return &Resolver{products: productRepo, coupons: couponRepo, now: time.Now}, nil
}

// Resolve prices lines against tx (or the base connection when tx is nil).
func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, lines []CartLine, couponCode string) (*Quote, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	productRepo := r.products.WithTx(tx)
	ids := make([]uuid.UUID, 0, len(merged))
	seen := make(map[uuid.UUID]struct{}, len(merged))
	for _, line := range merged {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	catalog, err := productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	requested := make(map[uuid.UUID]int, len(ids))
	for _, line := range merged {
		requested[line.ProductID] += line.Quantity
	}

	quote := &Quote{Lines: make([]ResolvedLine, 0, len(merged))}
	for _, line := range merged {
		product, ok := catalog[line.ProductID]
		if !ok || !product.Purchasable() {
			return nil, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonProductUnavailable, "product is unavailable").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		if want := requested[line.ProductID]; want > product.Stock {
			return nil, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonOutOfStock, "requested quantity exceeds stock").
				WithDetails(map[string]any{
					"product_id": product.ID.String(),
					"requested":  want,
					"available":  product.Stock,
				})
		}
		lineTotal := product.PriceCents * int64(line.Quantity)
		quote.Lines = append(quote.Lines, ResolvedLine{
			ProductID:      product.ID,
			VariantID:      line.VariantID,
			StoreID:        product.StoreID,
			Title:          product.Title,
			UnitPriceCents: product.PriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: lineTotal,
		})
		quote.SubtotalCents += lineTotal
	}

	if code := strings.TrimSpace(couponCode); code != "" {
		coupon, err := r.coupons.WithTx(tx).FindByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Business(pkgerrors.CodeNotFound, pkgerrors.ReasonCouponNotFound, "coupon not found").
				WithDetails(map[string]any{"code": coupons.NormalizeCode(code)})
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
		}
		discount, err := r.applyCoupon(coupon, quote.SubtotalCents)
		if err != nil {
			return nil, err
		}
		quote.CouponID = &coupon.ID
		quote.CouponCode = &coupon.Code
		quote.DiscountCents = discount
	}

	quote.TotalCents = quote.SubtotalCents - quote.DiscountCents
	if quote.TotalCents < 0 {
		quote.TotalCents = 0
	}
	return quote, nil
}

// applyCoupon checks eligibility in a fixed order so callers always get the
// same reason for the same coupon state.
func (r *Resolver) applyCoupon(coupon *models.Coupon, subtotal int64) (int64, error) {
	now := r.now().UTC()
	details := map[string]any{"code": coupon.Code}

	if now.Before(coupon.ValidFrom) || (coupon.ValidUntil != nil && now.After(*coupon.ValidUntil)) {
		return 0, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonCouponExpired, "coupon is outside its validity window").
			WithDetails(details)
	}
	if !coupon.IsActive {
		return 0, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonCouponInactive, "coupon is inactive").
			WithDetails(details)
	}
	if subtotal < coupon.MinimumOrderCents {
		details["minimum_order_cents"] = coupon.MinimumOrderCents
		details["subtotal_cents"] = subtotal
		return 0, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonCouponMinimumNotMet, "order subtotal below coupon minimum").
			WithDetails(details)
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return 0, pkgerrors.Business(pkgerrors.CodeStateConflict, pkgerrors.ReasonCouponUsageExceeded, "coupon usage limit reached").
			WithDetails(details)
	}

	return Discount(coupon, subtotal), nil
}

// Discount computes the coupon discount for a subtotal, capped at the
// coupon maximum and at the subtotal itself.
func Discount(coupon *models.Coupon, subtotal int64) int64 {
	var discount int64
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = money.Percent(subtotal, coupon.DiscountValue)
		if coupon.MaximumDiscountCents != nil && discount > *coupon.MaximumDiscountCents {
			discount = *coupon.MaximumDiscountCents
		}
	case enums.DiscountTypeFixed:
		discount = coupon.DiscountValue.Round(0).IntPart()
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

type lineKey struct {
	product uuid.UUID
	variant uuid.UUID
}

// mergeLines validates shape and folds repeated (product, variant) pairs,
// keeping first-seen order.
func mergeLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one cart line is required")
	}
	index := make(map[lineKey]int, len(lines))
	merged := make([]CartLine, 0, len(lines))
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required").
				WithDetails(map[string]any{"line": i})
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"line": i, "product_id": line.ProductID.String()})
		}
		key := lineKey{product: line.ProductID}
		if line.VariantID != nil {
			key.variant = *line.VariantID
		}
		if pos, ok := index[key]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

// Quote is a read-only preview against committed data.
func (r *Resolver) Quote(ctx context.Context, lines []CartLine, couponCode string) (*Quote, error) {
	return r.Resolve(ctx, nil, lines, couponCode)
}
